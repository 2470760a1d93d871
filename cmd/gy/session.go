package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/platform"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage account sessions",
	}

	cmd.AddCommand(newSessionLoginCmd())
	cmd.AddCommand(newSessionListCmd())
	return cmd
}

func newSessionLoginCmd() *cobra.Command {
	var (
		configPath string
		simulate   bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login <phone>",
		Short: "Link an account and store its credentials",
		Long: `Starts a session for the account, prints the credential scan payload when
the platform asks for one, and waits until the session is ready. The
credentials are kept under sessions.dir for later runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionLogin(cmd, configPath, args[0], simulate, timeout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "use the in-memory platform")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the scan")
	return cmd
}

func runSessionLogin(cmd *cobra.Command, configPath, phone string, simulate bool, timeout time.Duration) error {
	out := cmd.OutOrStdout()
	sv, err := buildServices(serviceOpts{ConfigPath: configPath, Simulate: simulate, LogOut: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()
	defer sv.close(context.Background())

	phone = platform.NormalizeKey(phone)
	if _, err := sv.store.AddAccount(phone, ""); err != nil {
		return err
	}
	if err := sv.login(ctx, out, phone, timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "Account %s is ready; credentials stored in %s\n", phone, sv.sessions.CredentialDir(phone))
	return nil
}

func newSessionListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered accounts and their stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	return cmd
}

func runSessionList(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer db.Close(st.DB())

	accounts, err := st.ListAccounts()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No accounts registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tLABEL\tAUTHENTICATED\tCREDENTIALS")
	for _, a := range accounts {
		dir := filepath.Join(cfg.Sessions.Dir, platform.ClientID(a.PhoneNumber))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.PhoneNumber, orDash(a.Label), yesNo(a.HasSession), yesNo(dirExists(dir)))
	}
	return w.Flush()
}
