package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/logger"
)

const configUsage = "Usage: terrainctl config [path|-]"

// cmdConfig writes the effective configuration, defaults overlaid by the
// config file and then by flags.
func cmdConfig(args []string) {
	cfg, rest := setup(args)
	defer logger.Sync()
	if len(rest) > 1 {
		fmt.Fprintln(os.Stderr, configUsage)
		os.Exit(1)
	}

	path, err := writeConfig(cfg, rest, os.Stdout)
	if err != nil {
		fatal("config failed", err)
	}
	if path != "" {
		logger.Info("config written", zap.String("path", path))
		fmt.Printf("Wrote %s\n", path)
	}
}

// writeConfig saves cfg to the user config directory when args is empty,
// prints it to stdout for "-", and otherwise saves it to args[0]. It
// returns the path written, if any.
func writeConfig(cfg *config.Config, args []string, stdout io.Writer) (string, error) {
	if len(args) == 0 {
		return cfg.Save()
	}
	if args[0] == "-" {
		data, err := cfg.Marshal()
		if err != nil {
			return "", err
		}
		_, err = stdout.Write(data)
		return "", err
	}
	return args[0], cfg.SaveTo(args[0])
}
