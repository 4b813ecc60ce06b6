package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/config"
	"github.com/mohammed-shakir/freeze-risk-map/internal/logger"
)

// app carries what every subcommand resolves before it runs.
type app struct {
	envFile string
	profile string
	cfg     config.Config
	zl      zerolog.Logger
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "freezemap",
		Short:         "County first-freeze risk map service",
		Long:          "freezemap serves the county first-freeze risk map: the REST API, the websocket map sessions, and CLI access to the CARTO query.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Name(), cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().StringVar(&a.profile, "profile", "", "viewer profile (v1..v4), overrides PROFILE")

	root.AddCommand(newServeCmd(a), newSQLCmd(a), newFetchCmd(a), newRefreshCmd(a))
	root.SetErr(os.Stderr)
	return root
}

func (a *app) init(component string, logOut io.Writer) error {
	if err := loadEnv(a.envFile); err != nil {
		return err
	}
	a.cfg = config.FromEnv()
	if a.profile != "" {
		a.cfg.Profile = a.profile
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.zl = logger.Build(logger.Config{
		Level:     a.cfg.LogLevel,
		Console:   a.cfg.LogConsole,
		SampleN:   a.cfg.LogSampleN,
		Profile:   a.cfg.Profile,
		Component: component,
	}, logOut)
	a.log = logger.NewSlog(&a.zl)
	return nil
}

// loadEnv reads path into the environment. A missing file is not an error and
// variables already set are left alone.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
