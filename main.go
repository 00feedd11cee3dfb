package main

import (
	"os"

	"example.com/backstage/services/partyup/cmd"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// LOG_LEVEL applies until the loaded config sets its own level
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("partyup exited")
	}
}
