package cmd

import (
	"net"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/spf13/cobra"
)

// serveFlags are kept apart from pipeFlags since the server logs at info by default.
var serveFlags = pipelineFlags{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service to trigger and monitor pipeline runs",
	Long: `Start a web service to trigger and monitor pipeline runs, where:

POST /runs/full, /runs/incremental, /runs/entity/{entity} and /staging/merge launch runs
GET  /runs and /runs/{runId} report on them
GET  /entities, /health and /metrics describe the service`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		log := serveFlags.logger()
		cfg, closeFn, err := serveFlags.setup(ctx, log)
		if err != nil {
			return err
		}
		defer closeFn()
		serveConfig.Log = log
		serveConfig.Pipeline = cfg
		return actions.RunWebServer(ctx, &serveConfig)
	},
}

var serveConfig = actions.WebServerConfig{
	Scheme: "http",
	Addr:   net.IP{0, 0, 0, 0},
	Port:   8080,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "a", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	serveFlags.register(serveCmd, "info")
}
