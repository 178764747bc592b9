package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/artpar/mesgate/adapters/sqlite"
	"github.com/artpar/mesgate/config"
	"github.com/artpar/mesgate/core/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the mesgate configuration and services document.

Checks:
  - YAML syntax is valid
  - Values are in range (ports, durations, portal mode)
  - The services document parses and passes validation
  - Every service's JSON Schema compiles
  - Remote portal is reachable (optional)
  - Database is writable (optional)

Examples:
  mesgate validate
  mesgate validate --config /etc/mesgate/mesgate.yaml --check-portal`,
	RunE: runValidate,
}

var (
	validateCheckPortal   bool
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckPortal, "check-portal", false, "check if the remote portal is reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(cfgFile); statErr == nil {
		fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)
		cfg, err = config.Load(cfgFile)
	} else {
		fmt.Fprintf(out, "Validating environment (%s not found)...\n\n", cfgFile)
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	// Show config summary
	fmt.Fprintf(out, "  %s Listen: %s\n", checkMark, cfg.Server.Addr())
	fmt.Fprintf(out, "  %s Database: %s\n", checkMark, cfg.Database.DSN)
	if cfg.Portal.Mode == config.PortalRemote {
		fmt.Fprintf(out, "  %s Portal: remote (%s)\n", checkMark, cfg.Portal.Remote.URL)
	} else {
		fmt.Fprintf(out, "  %s Portal: memory (rate %s)\n", checkMark, cfg.Portal.Rate)
	}
	if cfg.Server.APITokenHash == "" {
		fmt.Fprintf(out, "  %s API token: not set, API is open\n", crossMark)
	} else {
		fmt.Fprintf(out, "  %s API token: configured\n", checkMark)
	}

	doc, source, err := loadDocument(cfg.Services.Path)
	if err != nil {
		fmt.Fprintf(out, "  %s Services document\n", crossMark)
		return fmt.Errorf("services error: %w", err)
	}
	fmt.Fprintf(out, "  %s Services: %d from %s\n", checkMark, len(doc.Services), source)
	for _, svc := range doc.Services {
		if _, err := schema.CompileJSONSchema(svc); err != nil {
			fmt.Fprintf(out, "  %s JSON Schemas\n", crossMark)
			return fmt.Errorf("services error: %w", err)
		}
	}
	fmt.Fprintf(out, "  %s JSON Schemas compiled\n", checkMark)

	// Optional: check portal
	if validateCheckPortal && cfg.Portal.Mode == config.PortalRemote {
		if err := checkPortalReachable(cfg.Portal.Remote.URL); err != nil {
			fmt.Fprintf(out, "  %s Portal reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Portal reachable\n", checkMark)
		}
	}

	// Optional: check database
	if validateCheckDatabase {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkPortalReachable(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = db.Migrate(ctx)
	return err
}
