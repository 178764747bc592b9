package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mesgate",
	Short: "Mosenergosbyt service gateway",
	Long: `mesgate exposes the Mosenergosbyt meter services over HTTP.

It validates service calls against a declarative services.yaml document,
submits meter readings through a portal backend, and keeps a journal of
every call.

Quick start:
  mesgate serve                 # Start the API server
  mesgate services list         # Show the service catalogue
  mesgate check push_indications --data '{"meter_code": "12345678", "indications": "123, 456"}'

Management:
  mesgate hash-token --generate # Create an API token and its hash
  mesgate validate              # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "mesgate.yaml", "config file path")
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
