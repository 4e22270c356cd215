package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/agenthands/roundup/internal/server"
)

func ServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run state, report and clusters over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port == "" {
				port = cfg.Server.Port
			}

			gin.SetMode(gin.ReleaseMode)
			r := server.NewServer(cfg, logger).SetupRouter()

			logger.Info().Str("port", port).Msg("Starting server")
			return r.Run(":" + port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from config or PORT)")
	return cmd
}
