package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"streamgate"
	"streamgate/internal/config"
)

func init() {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve streamgate server",
		Long:  `serve streamgate server`,
		Run:   streamgate.Service.ServeCommand,
	}

	configs := []config.Config{
		streamgate.Service.ServerConfig,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		streamgate.Service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	root.AddCommand(command)
}
