package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/models"
	"github.com/zulandar/groupyard/internal/platform"
	"github.com/zulandar/groupyard/internal/store"
)

func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Manage group invite targets",
	}

	cmd.AddCommand(newTargetImportCmd())
	cmd.AddCommand(newTargetListCmd())
	return cmd
}

func newTargetImportCmd() *cobra.Command {
	var (
		configPath string
		country    string
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import invite links from a CSV file",
		Long: `Reads a CSV file with a header row. The "link" column is required; "name",
"country", "country_origin", "members" and "admin_permission" are optional.
Links already in the database are skipped, so re-importing is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargetImport(cmd, configPath, args[0], country)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVar(&country, "country", "", "country for rows that have none")
	return cmd
}

func runTargetImport(cmd *cobra.Command, configPath, path, country string) error {
	out := cmd.OutOrStdout()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	targets, err := parseTargetsCSV(f, country)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	cfg, st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer db.Close(st.DB())

	n, err := st.InsertTargets(targets)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Read %d rows, imported %d new targets (%d already known)\n", len(targets), n, len(targets)-n)

	bad, err := linksWithoutCode(targets, cfg.Sessions.InviteHost)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		fmt.Fprintf(out, "Warning: %d links have no %s invite code and will fail to join:\n", len(bad), cfg.Sessions.InviteHost)
		for _, l := range bad {
			fmt.Fprintf(out, "  %s\n", truncate(l, 80))
		}
	}
	return nil
}

// linksWithoutCode returns the links that carry no invite code on host.
func linksWithoutCode(targets []models.Target, host string) ([]string, error) {
	m, err := platform.NewInviteMatcher(host)
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, t := range targets {
		if m.Code(t.Link) == "" {
			bad = append(bad, t.Link)
		}
	}
	return bad, nil
}

var targetColumns = []string{"link", "name", "country", "country_origin", "members", "admin_permission"}

// parseTargetsCSV maps header-named columns onto targets. Rows without a
// link are dropped.
func parseTargetsCSV(r io.Reader, defaultCountry string) ([]models.Target, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := idx["link"]; !ok {
		return nil, fmt.Errorf("missing %q column (columns: %s)", "link", strings.Join(targetColumns, ", "))
	}

	var out []models.Target
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		t := models.Target{
			Link:            get("link"),
			Name:            get("name"),
			Country:         get("country"),
			CountryOrigin:   get("country_origin"),
			Members:         get("members"),
			AdminPermission: get("admin_permission"),
		}
		if t.Link == "" {
			continue
		}
		if t.Country == "" {
			t.Country = defaultCountry
		}
		out = append(out, t)
	}
	return out, nil
}

func newTargetListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		country    string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List targets by status",
		Long: `Lists targets. --status is one of pending, unverified, working, approval,
successful or failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargetList(cmd, configPath, status, country, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVarP(&status, "status", "s", "pending", "target status to list")
	cmd.Flags().StringVar(&country, "country", "", "filter by country")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows (pending-side lists only)")
	return cmd
}

func queryTargets(st *store.Store, status, country string, limit int) ([]models.Target, error) {
	switch status {
	case "pending":
		return st.PendingByCountry(country, limit)
	case "unverified":
		return st.Unverified(country, limit)
	case "working":
		return st.Working(country, limit)
	case "approval":
		return st.RequiresApproval(country, limit)
	case "successful":
		return st.Successful()
	case "failed":
		return st.Failed()
	default:
		return nil, fmt.Errorf("unknown status %q (pending, unverified, working, approval, successful, failed)", status)
	}
}

func runTargetList(cmd *cobra.Command, configPath, status, country string, limit int) error {
	out := cmd.OutOrStdout()
	_, st, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer db.Close(st.DB())

	targets, err := queryTargets(st, status, country, limit)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintf(out, "No %s targets.\n", status)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINK\tNAME\tCOUNTRY\tSTATUS\tVERIFIED\tAPPROVAL\tDETAIL")
	for _, t := range targets {
		detail := t.PlatformTargetID
		if t.Status == models.TargetFailed {
			detail = t.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Link, orDash(truncate(t.Name, 30)), orDash(t.Country), t.Status,
			yesNo(t.Verified), yesNo(t.RequiresApproval), orDash(truncate(detail, 40)))
	}
	return w.Flush()
}
