// The wadplayd command runs the Wrale signage ad runtime
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wrale/wrale-adplay/internal/wadplayd/config"
	"github.com/wrale/wrale-adplay/internal/wadplayd/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "wadplayd",
		Short:         "Run the signage ad runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(v.GetString("env-file")); err != nil {
				return err
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
			return run(cmd.Context(), cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to config file")
	flags.String("env-file", ".env", "dotenv file loaded before the environment is read")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")
	flags.Int("port", 0, "port for the host API")

	v.SetEnvPrefix("WADPLAYD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

// loadEnvFile exports the variables in path. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := v.GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags win over file and environment
	if level := v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format := v.GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if port := v.GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	return cfg, nil
}
