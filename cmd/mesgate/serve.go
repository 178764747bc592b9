package main

import (
	"fmt"
	"os"

	"github.com/artpar/mesgate/bootstrap"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the mesgate API server.

The server will:
  - Load configuration from mesgate.yaml (or --config)
  - Or load configuration from MESGATE_* environment variables
  - Open and migrate the SQLite database
  - Sync entities from the portal and refresh them periodically
  - Reload the config file (and services.yaml when services.watch is set)
    on change or SIGHUP

Environment variables (for Docker deployments):
  MESGATE_DATABASE_DSN      - Database path (default: mesgate.db)
  MESGATE_SERVER_PORT       - Server port (default: 8080)
  MESGATE_API_TOKEN_HASH    - bcrypt hash of the API token (see hash-token)
  MESGATE_PORTAL_MODE       - Portal backend: memory or remote
  MESGATE_PORTAL_URL        - Remote portal URL (remote mode)
  MESGATE_SERVICES_PATH     - services.yaml override
  MESGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  mesgate serve
  mesgate serve --config /etc/mesgate/mesgate.yaml

  # Docker (env vars only):
  MESGATE_PORTAL_MODE=remote MESGATE_PORTAL_URL=http://portal:9000 mesgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s not found, running with environment variables\n", cfgFile)
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
