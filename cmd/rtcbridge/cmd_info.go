package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Prints information about the rtcbridge config",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := LoadConfig(options.configFile)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to load config file")
			}

			fmt.Printf("public-key: %s\n", cfg.KeyPair.Public)
			if cfg.SignalAddress != "" {
				fmt.Printf("signal-address: %s\n", cfg.SignalAddress)
			}
			for _, server := range cfg.ICEServers {
				fmt.Printf("ice-server: %s\n", strings.Join(server.URLs, " "))
			}
		},
	}
	rootCmd.AddCommand(infoCmd)
}
