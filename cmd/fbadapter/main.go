package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/kadirbelkuyu/fbadapter/internal/app"
	"github.com/kadirbelkuyu/fbadapter/internal/config"
	"github.com/kadirbelkuyu/fbadapter/internal/profiles"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fbadapter",
	Short: "Firebird adapter toolkit",
	Long:  `Inspect Firebird databases, translate pagination into FIRST/SKIP and copy schema and data between Firebird servers.`,
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List user tables and views",
	RunE:  runTables,
}

var describeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Describe a table's columns, keys, indexes and constraints",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the server version and the features it enables",
	RunE:  runVersion,
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <sql> [bind...]",
	Short: "Translate LIMIT/OFFSET into FIRST/SKIP without connecting",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRewrite,
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Copy schema and data between Firebird databases",
	RunE:  runTransfer,
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Browse tables and run SQL in a terminal UI",
	RunE:  runExplore,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List saved connection profiles",
	RunE:  runProfiles,
}

var workflowService = app.NewService()

var (
	configPath       string
	profileName      string
	profilesDir      string
	sourceConfigPath string
	targetConfigPath string
	schemaOnly       bool
	dataOnly         bool
	parallelWorkers  int
	batchSize        int
	tables           []string
	verbose          bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the database configuration file")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of a saved connection profile")
	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles-dir", "configs", "Directory holding saved profiles")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging, including every statement")

	transferCmd.Flags().StringVar(&sourceConfigPath, "source-config", "", "Path or profile name of the source database")
	transferCmd.Flags().StringVar(&targetConfigPath, "target-config", "", "Path or profile name of the target database")
	transferCmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "Transfer schema objects only")
	transferCmd.Flags().BoolVar(&dataOnly, "data-only", false, "Transfer data only")
	transferCmd.Flags().IntVar(&parallelWorkers, "workers", 4, "Number of parallel workers during transfer")
	transferCmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Batch size for data transfer")
	transferCmd.Flags().StringSliceVar(&tables, "tables", nil, "Limit the transfer to these tables")

	transferCmd.MarkFlagRequired("source-config")
	transferCmd.MarkFlagRequired("target-config")

	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(profilesCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves --config or --profile.
func loadConfig() (*config.Config, error) {
	switch {
	case configPath != "":
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("cannot load config: %w", err)
		}
		return cfg, nil
	case profileName != "":
		cfg, err := profiles.NewManager(profilesDir).Load(profileName)
		if err != nil {
			return nil, fmt.Errorf("cannot load profile %s: %w", profileName, err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("either --config or --profile is required")
	}
}

func runTables(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Tables(cmd.Context(), cfg, verbose)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Describe(cmd.Context(), cfg, args[0], verbose)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Version(cmd.Context(), cfg, verbose)
}

func runRewrite(cmd *cobra.Command, args []string) error {
	return workflowService.Rewrite(args[0], args[1:])
}

func runTransfer(cmd *cobra.Command, args []string) error {
	sourceConfig, err := profiles.NewManager(profilesDir).Resolve(sourceConfigPath)
	if err != nil {
		return fmt.Errorf("cannot load source config: %w", err)
	}

	targetConfig, err := profiles.NewManager(profilesDir).Resolve(targetConfigPath)
	if err != nil {
		return fmt.Errorf("cannot load target config: %w", err)
	}

	return workflowService.Transfer(cmd.Context(), sourceConfig, targetConfig, app.TransferRequest{
		SchemaOnly: schemaOnly,
		DataOnly:   dataOnly,
		Workers:    parallelWorkers,
		BatchSize:  batchSize,
		Tables:     tables,
		Verbose:    verbose,
	})
}

func runExplore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Explore(cmd.Context(), cfg)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	return workflowService.Profiles(profiles.NewManager(profilesDir))
}
