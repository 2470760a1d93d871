package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/platform"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		country    string
		account    string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show target and campaign totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, st, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer db.Close(st.DB())

			ts, err := st.StatsByCountry(country)
			if err != nil {
				return err
			}
			cs, err := st.CampaignStats(platform.NormalizeKey(account))
			if err != nil {
				return err
			}

			scope := "all countries"
			if country != "" {
				scope = country
			}
			fmt.Fprintf(out, "Targets (%s)\n", scope)
			fmt.Fprintf(out, "  Total:      %d\n", ts.Total)
			fmt.Fprintf(out, "  Pending:    %d\n", ts.Pending)
			fmt.Fprintf(out, "  Successful: %d (%s)\n", ts.Successful, percent(ts.Successful, ts.Total))
			fmt.Fprintf(out, "  Failed:     %d (%s)\n", ts.Failed, percent(ts.Failed, ts.Total))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Campaigns")
			fmt.Fprintf(out, "  Total:      %d\n", cs.Total)
			fmt.Fprintf(out, "  Pending:    %d\n", cs.Pending)
			fmt.Fprintf(out, "  Scheduled:  %d\n", cs.Scheduled)
			fmt.Fprintf(out, "  Running:    %d\n", cs.Running)
			fmt.Fprintf(out, "  Paused:     %d\n", cs.Paused)
			fmt.Fprintf(out, "  Completed:  %d\n", cs.Completed)
			fmt.Fprintf(out, "  Failed:     %d\n", cs.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVar(&country, "country", "", "limit target totals to one country")
	cmd.Flags().StringVarP(&account, "account", "a", "", "limit campaign totals to one account")
	return cmd
}
