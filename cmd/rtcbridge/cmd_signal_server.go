package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rtcbridge/rtcbridge/signal"
)

func init() {
	var addr string

	signalServerCmd := &cobra.Command{
		Use:   "signal-server",
		Short: "Runs a signaling rendezvous server",
		RunE: func(cmd *cobra.Command, args []string) error {
			gin.SetMode(gin.ReleaseMode)

			srv := signal.NewServer(log.Logger)
			defer srv.Close()

			r := gin.New()
			r.Use(gin.Recovery())
			srv.Register(r)

			log.Info().Str("addr", addr).Msg("starting signal server")
			return r.Run(addr)
		},
	}
	signalServerCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9451", "the address to listen on")
	rootCmd.AddCommand(signalServerCmd)
}
