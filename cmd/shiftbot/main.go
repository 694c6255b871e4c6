package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shiftbot/internal/config"
	"shiftbot/internal/logging"
)

// version is stamped by the release build.
var version = "dev"

var (
	// Global flags
	cfgFile string
	verbose bool

	// cfg is loaded once in PersistentPreRunE and read by every command.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shiftbot",
	Short: "shiftbot - an autonomous agent for Blueshift Solana challenges",
	Long: `shiftbot works the Blueshift challenge catalog on its own: it reads a
challenge, writes and builds the Anchor program or client transaction the
grader asks for, signs the result with its wallet, submits it, and keeps
a local journal of every run.

Start with "shiftbot run" to let the agent pick the next unsolved
challenge, or give it a slug to focus on one.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.ExpandHome(cfgFile))
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Init(level, cfg.Logging.Format, cfg.Logging.File)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the shiftbot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shiftbot %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "shiftbot.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(challengesCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
