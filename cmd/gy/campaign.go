package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/campaign"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/delivery"
	"github.com/zulandar/groupyard/internal/platform"
)

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Create and run message campaigns",
	}

	cmd.AddCommand(newCampaignCreateCmd())
	cmd.AddCommand(newCampaignListCmd())
	cmd.AddCommand(newCampaignShowCmd())
	cmd.AddCommand(newCampaignRunCmd())
	cmd.AddCommand(newCampaignDeleteCmd())
	for _, action := range []string{"start", "pause", "resume", "stop"} {
		cmd.AddCommand(newCampaignSteerCmd(action))
	}
	return cmd
}

type createFlags struct {
	configPath  string
	name        string
	account     string
	message     string
	templateID  uint
	kind        string
	recipients  []string
	file        string
	attachments []string
	schedule    string
	config      delivery.Config
}

func newCampaignCreateCmd() *cobra.Command {
	var f createFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		Long: `Creates a campaign for one account. Recipients come from --to and/or
--file (one identifier per line). Without --schedule the campaign is
created pending and must be started; with it, the scheduler in
"gy serve" starts it when due.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaignCreate(cmd, &f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVar(&f.name, "name", "", "campaign name (required)")
	cmd.Flags().StringVarP(&f.account, "account", "a", "", "sending account phone number (required)")
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "message text")
	cmd.Flags().UintVar(&f.templateID, "template", 0, "use a stored template's message")
	cmd.Flags().StringVar(&f.kind, "kind", string(delivery.KindGroups), "recipient kind: groups, numbers or contacts")
	cmd.Flags().StringSliceVar(&f.recipients, "to", nil, "recipient identifiers")
	cmd.Flags().StringVar(&f.file, "file", "", "file with one recipient per line")
	cmd.Flags().StringSliceVar(&f.attachments, "attach", nil, "file to attach (repeatable)")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "start time (RFC 3339 or \"2006-01-02 15:04\" local)")
	cmd.Flags().IntVar(&f.config.DelayMin, "delay-min", 0, "minimum seconds between messages")
	cmd.Flags().IntVar(&f.config.DelayMax, "delay-max", 0, "maximum seconds between messages")
	cmd.Flags().IntVar(&f.config.BatchSize, "batch-size", 0, "recipients per batch")
	cmd.Flags().IntVar(&f.config.BatchDelay, "batch-delay", 0, "minutes between batches")
	cmd.Flags().IntVar(&f.config.PauseEvery, "pause-every", 0, "cool down after this many sent messages")
	cmd.Flags().IntVar(&f.config.PauseDuration, "pause-duration", 0, "cool-down length in minutes")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("account")
	return cmd
}

func runCampaignCreate(cmd *cobra.Command, f *createFlags) error {
	out := cmd.OutOrStdout()

	ids := append([]string(nil), f.recipients...)
	if f.file != "" {
		fromFile, err := readLines(f.file)
		if err != nil {
			return err
		}
		ids = append(ids, fromFile...)
	}
	var scheduledAt *time.Time
	if f.schedule != "" {
		t, err := parseSchedule(f.schedule, time.Local)
		if err != nil {
			return err
		}
		scheduledAt = &t
	}
	attachments, err := loadAttachments(f.attachments)
	if err != nil {
		return err
	}

	_, st, err := openStore(f.configPath)
	if err != nil {
		return err
	}
	defer db.Close(st.DB())

	message := f.message
	if f.templateID != 0 {
		tpl, err := st.GetTemplate(f.templateID)
		if err != nil {
			return fmt.Errorf("template %d: %w", f.templateID, err)
		}
		message = tpl.Message
	}

	row, err := campaign.Build(campaign.Spec{
		Name:        f.name,
		AccountKey:  f.account,
		Message:     message,
		Recipients:  delivery.Recipients{Kind: delivery.Kind(f.kind), IDs: ids},
		Attachments: attachments,
		Config:      f.config,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		return err
	}
	if err := st.CreateCampaign(row); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created campaign %d %q (%s, %d recipients)\n", row.ID, row.Name, row.Status, len(ids))
	return nil
}

// parseSchedule accepts RFC 3339 or a local "YYYY-MM-DD HH:MM".
func parseSchedule(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --schedule %q: use RFC 3339 or \"2006-01-02 15:04\"", s)
	}
	return t, nil
}

// readLines returns the non-blank, non-comment lines of path.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func loadAttachments(paths []string) ([]platform.Attachment, error) {
	out := make([]platform.Attachment, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		mt := mime.TypeByExtension(filepath.Ext(p))
		if mt == "" {
			mt = "application/octet-stream"
		}
		out = append(out, platform.Attachment{MimeType: mt, Data: data, Filename: filepath.Base(p)})
	}
	return out, nil
}

func newCampaignListCmd() *cobra.Command {
	var (
		configPath string
		account    string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaignList(cmd, configPath, account, status)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVarP(&account, "account", "a", "", "filter by account")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status")
	return cmd
}

func runCampaignList(cmd *cobra.Command, configPath, account, status string) error {
	out := cmd.OutOrStdout()
	_, st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer db.Close(st.DB())

	rows, err := st.CampaignsByStatus(status, platform.NormalizeKey(account))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No campaigns found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACCOUNT\tKIND\tSTATUS\tSENT\tFAILED\tSCHEDULED")
	for i := range rows {
		c := &rows[i]
		sum, _ := campaign.Results(c)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID, truncate(c.Name, 30), c.AccountKey, c.RecipientKind, c.Status,
			sum.Sent, sum.Failed, formatTime(c.ScheduledAt))
	}
	return w.Flush()
}

func newCampaignShowCmd() *cobra.Command {
	var (
		configPath string
		details    bool
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a campaign and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaignShow(cmd, configPath, args[0], details)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().BoolVar(&details, "details", false, "list every recipient result")
	return cmd
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid campaign id %q", s)
	}
	return uint(id), nil
}

func runCampaignShow(cmd *cobra.Command, configPath, arg string, details bool) error {
	out := cmd.OutOrStdout()
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	_, st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer db.Close(st.DB())

	c, err := st.GetCampaign(id)
	if err != nil {
		return err
	}
	job, jobErr := campaign.Job(c)
	sum, _ := campaign.Results(c)

	fmt.Fprintf(out, "Campaign %d: %s\n", c.ID, c.Name)
	fmt.Fprintf(out, "  Account:    %s\n", c.AccountKey)
	fmt.Fprintf(out, "  Status:     %s\n", c.Status)
	fmt.Fprintf(out, "  Recipients: %s\n", c.RecipientKind)
	if jobErr == nil {
		fmt.Fprintf(out, "  Count:      %d\n", len(job.Recipients.IDs))
		fmt.Fprintf(out, "  Files:      %d\n", len(job.Attachments))
	}
	fmt.Fprintf(out, "  Scheduled:  %s\n", formatTime(c.ScheduledAt))
	fmt.Fprintf(out, "  Started:    %s\n", formatTime(c.StartedAt))
	fmt.Fprintf(out, "  Completed:  %s\n", formatTime(c.CompletedAt))
	fmt.Fprintf(out, "  Message:    %s\n", truncate(strings.ReplaceAll(c.Message, "\n", " "), 70))
	if sum.Total > 0 {
		fmt.Fprintf(out, "  Results:    %d sent, %d failed of %d (%s delivered)\n",
			sum.Sent, sum.Failed, sum.Total, percent(int64(sum.Sent), int64(sum.Total)))
	}
	if details && len(sum.Details) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\n  RECIPIENT\tSTATUS\tAT\tERROR")
		for _, d := range sum.Details {
			at := d.At
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", d.Recipient, d.Status, formatTime(&at), orDash(d.Error))
		}
		w.Flush()
	}
	return nil
}

func newCampaignRunCmd() *cobra.Command {
	var (
		configPath string
		simulate   bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a campaign in the foreground",
		Long: `Logs the campaign's account in and delivers the campaign from this process,
printing progress. Interrupting leaves the campaign paused with its
results, so running it again continues with the remaining recipients.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaignRun(cmd, configPath, args[0], simulate, timeout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "use the in-memory platform")
	cmd.Flags().DurationVar(&timeout, "login-timeout", 2*time.Minute, "how long to wait for the session")
	return cmd
}

func runCampaignRun(cmd *cobra.Command, configPath, arg string, simulate bool, timeout time.Duration) error {
	out := cmd.OutOrStdout()
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	sv, err := buildServices(serviceOpts{ConfigPath: configPath, Simulate: simulate, LogOut: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer sv.close(context.Background())
	ctx, cancel := signalContext(cmd)
	defer cancel()

	c, err := sv.store.GetCampaign(id)
	if err != nil {
		return err
	}
	if err := sv.login(ctx, out, c.AccountKey, timeout); err != nil {
		return err
	}
	if err := sv.runner.Start(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Running campaign %d %q...\n", id, c.Name)

	if err := sv.runner.Wait(ctx, id); err != nil {
		// Interrupted: stop at the next checkpoint and keep the results.
		sv.runner.Stop(id)
		waitCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		sv.runner.Wait(waitCtx, id)
	}

	c, err = sv.store.GetCampaign(id)
	if err != nil {
		return err
	}
	sum, _ := campaign.Results(c)
	fmt.Fprintf(out, "Campaign %d %s: %d sent, %d failed of %d\n", id, c.Status, sum.Sent, sum.Failed, sum.Total)
	return nil
}

func newCampaignDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a campaign that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, st, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer db.Close(st.DB())
			if err := st.DeleteCampaign(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted campaign %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	return cmd
}

// newCampaignSteerCmd controls a campaign inside a running "gy serve"
// through its HTTP API.
func newCampaignSteerCmd(action string) *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   action + " <id>",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a campaign on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return steerCampaign(cmd.Context(), cmd.OutOrStdout(), http.DefaultClient, apiURL, id, action)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:3000", "base URL of the groupyard API")
	return cmd
}

func steerCampaign(ctx context.Context, out io.Writer, client *http.Client, base string, id uint, action string) error {
	url := fmt.Sprintf("%s/api/campaigns/%d/%s", strings.TrimRight(base, "/"), id, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s campaign %d: %w", action, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return fmt.Errorf("%s campaign %d: %s", action, id, body.Error)
	}
	fmt.Fprintf(out, "Campaign %d: %s requested\n", id, action)
	return nil
}
