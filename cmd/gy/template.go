package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/models"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage message templates",
	}

	cmd.AddCommand(newTemplateListCmd())
	cmd.AddCommand(newTemplateAddCmd())
	cmd.AddCommand(newTemplateDeleteCmd())
	return cmd
}

func newTemplateListCmd() *cobra.Command {
	var (
		configPath string
		category   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, st, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer db.Close(st.DB())

			rows, err := st.ListTemplates(category)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No templates.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tMESSAGE")
			for _, t := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Name, t.Category,
					truncate(strings.ReplaceAll(t.Message, "\n", " "), 50))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func newTemplateAddCmd() *cobra.Command {
	var (
		configPath string
		category   string
		message    string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				message = string(data)
			}
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("a message is required (--message or --file)")
			}
			_, st, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer db.Close(st.DB())

			t := &models.Template{Name: args[0], Message: message, Category: category}
			if err := st.CreateTemplate(t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created template %d %q in %s\n", t.ID, t.Name, t.Category)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringVar(&category, "category", "general", "template category")
	cmd.Flags().StringVarP(&message, "message", "m", "", "template text")
	cmd.Flags().StringVar(&file, "file", "", "read the template text from a file")
	return cmd
}

func newTemplateDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template",
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
			if err := st.DeleteTemplate(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	return cmd
}
