package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/framebridge/internal/config"
	"github.com/danmuck/framebridge/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	kind := flags.String("kind", "host", "config kind: host|frame")
	output := flags.String("output", "", "output path for config template")
	validate := flags.Bool("validate", false, "validate an existing config file")
	input := flags.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flags.Bool("force", false, "overwrite existing config file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	logging.ConfigureRuntime()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if err := validateFile(*kind, path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("write template failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}

func defaultPath(kind string) string {
	switch kind {
	case "frame":
		return "cmd/framectl/config.toml"
	default:
		return "cmd/framebridgectl/config.toml"
	}
}

func validateFile(kind, path string) error {
	switch kind {
	case "host":
		_, err := config.LoadHostConfig(path)
		return err
	case "frame":
		_, err := config.LoadFrameConfig(path)
		return err
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}
}
