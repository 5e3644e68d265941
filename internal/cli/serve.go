// internal/cli/serve.go
package cli

import (
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd runs the worker HTTP surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scrape worker HTTP server",
	Long: `Starts the browser and serves scrape requests over HTTP until interrupted.

Routes:
  GET  /healthz    liveness, 503 while the browser is disconnected
  GET  /v1/status  browser metrics, rate limit buckets and session health
  GET  /v1/sites   configured sites
  POST /v1/scrape  run one monitor synchronously`,
	Example: `  # Serve on the configured address
  $ marketwatch serve

  # Serve on all interfaces
  $ marketwatch serve --addr=:8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	ctx := cmd.Context()

	srv, err := a.Server(ctx)
	if err != nil {
		return err
	}

	addr := a.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return srv.Serve(ctx, addr, a.Config.Server.ShutdownGrace)
}
