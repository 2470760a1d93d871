package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/groupyard/internal/db"
	"github.com/zulandar/groupyard/internal/platform"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var (
		configPath string
		accounts   []string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the groupyard database",
		Long:  "Migrates all tables, seeds the default message templates and registers any accounts given with --account.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath, accounts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "account phone number to register (repeatable)")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string, accounts []string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	return migrateAndSeed(cmd, gormDB, accounts)
}

func migrateAndSeed(cmd *cobra.Command, gormDB *gorm.DB, accounts []string) error {
	out := cmd.OutOrStdout()

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	n, err := db.SeedTemplates(gormDB, db.DefaultTemplates())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d templates\n", n)

	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if k := platform.NormalizeKey(a); k != "" {
			keys = append(keys, k)
		}
	}
	n, err = db.SeedAccounts(gormDB, keys)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		fmt.Fprintf(out, "Registered %d accounts\n", n)
	}

	fmt.Fprintln(out, "\nGroupyard database initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the groupyard tables",
		Long: `Drops every groupyard table and re-creates it (migrate + seed).
All targets, campaigns, accounts and templates are lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to groupyard config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if !skipConfirm && !confirmReset(cmd, cfg.Database.Driver) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	if err := gormDB.Migrator().DropTable(db.AllModels()...); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	fmt.Fprintf(out, "Dropped %d tables\n", len(db.AllModels()))

	return migrateAndSeed(cmd, gormDB, nil)
}

func confirmReset(cmd *cobra.Command, driver string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all groupyard data in the %s database.\n", driver)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
