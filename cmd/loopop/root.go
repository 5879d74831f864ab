package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/loopop/pkg/loopop"
	"github.com/arthur-debert/loopop/pkg/loopop/config"
)

var (
	cfgFile       string
	logLevel      string
	maxConcurrent int
	idScheme      string

	// rt is built before any command that needs it runs
	rt *loopop.Runtime
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loopop",
	Short: "Run loop driven operations: reachability checks and cache purges",
	Long: `loopop runs asynchronous operations on cooperative run loops behind a
bounded task queue. It can wait for a host to become reachable and purge a
photo gallery cache, deleting as much as it can and reporting the first failure.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the user config dir loopop/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().IntVar(&maxConcurrent, "max-concurrent", 0, "number of tasks allowed to run at once")
	rootCmd.PersistentFlags().StringVar(&idScheme, "id-scheme", "", "operation ID scheme: "+strings.Join(config.IDSchemes, ", "))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newInitConfigCommand())
	rootCmd.AddCommand(newPurgeCommand())
	rootCmd.AddCommand(newReachCommand())
	rootCmd.AddCommand(newCacheCommand())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Print the version number of loopop`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "loopop version %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("max-concurrent") {
		cfg.Queue.MaxConcurrent = maxConcurrent
	}
	if flags.Changed("id-scheme") {
		cfg.Operations.IDScheme = idScheme
	}
	return cfg, nil
}

// withRuntime wraps a RunE so it runs with rt set up, and torn down after
func withRuntime(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err = loopop.NewRuntime(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			rt.Close()
			rt = nil
		}()
		return run(cmd, args)
	}
}

func newInitConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no config path given and no user config directory")
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
			return nil
		},
	}
}
