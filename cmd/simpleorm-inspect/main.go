// Package main implements simpleorm-inspect, a tool that prints the recorded
// table schemas and row counts of a simpleorm database.
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arkilian/simpleorm/pkg/config"
	"github.com/arkilian/simpleorm/pkg/orm"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := execRootCmd(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootParams struct {
	configFile string
	dataDir    string
	dbFile     string
}

func execRootCmd(args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(out io.Writer) *cobra.Command {
	var params rootParams
	rootCmd := &cobra.Command{
		Use:           "simpleorm-inspect",
		Short:         "Inspect the tables and schema snapshots of a simpleorm database",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&params.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&params.dataDir, "data-dir", "", "Base directory for all data files")
	rootCmd.PersistentFlags().StringVar(&params.dbFile, "database-file", "", "SQLite database file")

	rootCmd.AddCommand(
		newSnapshotCmd(&params),
		newSnapshotsCmd(&params),
		newTablesCmd(&params),
	)
	return rootCmd
}

func newSnapshotCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <table>",
		Short: "Print the recorded create statement and version of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(params)
			if err != nil {
				return err
			}
			defer db.Close()

			snap, ok, err := db.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no schema recorded for table %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table:   %s\nversion: %d\nschema:  %s\n",
				snap.Table, snap.Version, snap.CreateStatement)
			return nil
		},
	}
}

func newSnapshotsCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List every recorded table schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(params)
			if err != nil {
				return err
			}
			defer db.Close()

			snaps, err := db.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tVERSION\tSCHEMA")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.Table, s.Version, s.CreateStatement)
			}
			return w.Flush()
		},
	}
}

func newTablesCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the database with their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(params)
			if err != nil {
				return err
			}
			defer db.Close()

			tables, err := db.Tables(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS")
			for _, t := range tables {
				fmt.Fprintf(w, "%s\t%d\n", t.Name, t.Rows)
			}
			return w.Flush()
		},
	}
}

func openDB(params *rootParams) (*orm.DB, error) {
	cfg, err := loadConfig(params)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Quiet = true
	return orm.Open(cfg)
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(params *rootParams) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if params.configFile != "" {
		cfg, err = config.LoadFromFile(params.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if params.dataDir != "" {
		cfg.DataDir = params.dataDir
	}
	if params.dbFile != "" {
		cfg.DatabaseFile = params.dbFile
	}

	return cfg, nil
}
