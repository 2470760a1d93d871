package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/join"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/verify"
)

// batchFlags are shared by verify and join.
type batchFlags struct {
	configPath string
	account    string
	country    string
	limit      int
	simulate   bool
	timeout    time.Duration
}

func (f *batchFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVarP(&f.account, "account", "a", "", "account phone number to act as (required)")
	cmd.Flags().StringVar(&f.country, "country", "", "only targets from this country")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", defaultLimit, "maximum targets to process")
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "use the in-memory platform")
	cmd.Flags().DurationVar(&f.timeout, "login-timeout", 2*time.Minute, "how long to wait for the session")
	cmd.MarkFlagRequired("account")
}

// connect builds the services and logs the account in.
func (f *batchFlags) connect(ctx context.Context, cmd *cobra.Command) (*services, platform.Connection, error) {
	sv, err := buildServices(serviceOpts{ConfigPath: f.configPath, Simulate: f.simulate, LogOut: cmd.ErrOrStderr()})
	if err != nil {
		return nil, nil, err
	}
	if err := sv.login(ctx, cmd.OutOrStdout(), f.account, f.timeout); err != nil {
		sv.close(context.Background())
		return nil, nil, err
	}
	conn, ok := sv.sessions.ReadyConnection(f.account)
	if !ok {
		sv.close(context.Background())
		return nil, nil, fmt.Errorf("session %s is not ready", f.account)
	}
	return sv, conn, nil
}

func newVerifyCmd() *cobra.Command {
	var flags batchFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check pending invite links without joining",
		Long: `Looks up each unverified pending invite link and classifies it as working,
requires_approval, expired, invalid or error. Working and approval
results are recorded on the target; dead links stay pending for join.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, &flags)
		},
	}

	flags.register(cmd, 50)
	return cmd
}

func runVerify(cmd *cobra.Command, flags *batchFlags) error {
	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	sv, conn, err := flags.connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer sv.close(context.Background())

	targets, err := sv.store.Unverified(flags.country, flags.limit)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No unverified targets.")
		return nil
	}
	fmt.Fprintf(out, "Verifying %d targets...\n", len(targets))
	printReport(out, sv.verifier.VerifyBatch(ctx, conn, targets))
	return nil
}

func printReport(out io.Writer, r verify.Report) {
	fmt.Fprintf(out, "\nChecked %d links:\n", r.Total)
	classes := make([]string, 0, len(r.Counts))
	for c := range r.Counts {
		classes = append(classes, string(c))
	}
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Fprintf(out, "  %-18s %d\n", c, r.Counts[verify.Classification(c)])
	}
	for _, res := range r.Results {
		if res.Error != "" {
			fmt.Fprintf(out, "  ! %s: %s\n", res.Link, res.Error)
		}
	}
}

func newJoinCmd() *cobra.Command {
	var (
		flags batchFlags
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join pending groups from their invite links",
		Long: `Joins pending targets one at a time, recording each outcome. After every
successful join the command waits --delay (join.delay by default) before
the next attempt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, &flags, delay)
		},
	}

	flags.register(cmd, 10)
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause after each successful join (overrides join.delay)")
	return cmd
}

func runJoin(cmd *cobra.Command, flags *batchFlags, delay time.Duration) error {
	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	sv, conn, err := flags.connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer sv.close(context.Background())

	if delay <= 0 {
		delay = sv.cfg.Join.Delay
	}
	targets, err := sv.store.PendingByCountry(flags.country, flags.limit)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No pending targets.")
		return nil
	}
	fmt.Fprintf(out, "Joining %d targets (%s between joins)...\n", len(targets), delay)

	results := sv.joiner.JoinBatch(ctx, conn, targets, delay)
	counts := make(map[join.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
		switch r.Outcome {
		case join.Joined:
			fmt.Fprintf(out, "  joined  %s -> %s\n", r.Link, r.GroupID)
		case join.Failed:
			fmt.Fprintf(out, "  failed  %s: %s\n", r.Link, r.Error)
		}
	}
	fmt.Fprintf(out, "\nJoined %d, failed %d, already processed %d (of %d attempted)\n",
		counts[join.Joined], counts[join.Failed], counts[join.AlreadyProcessed], len(results))
	return nil
}
