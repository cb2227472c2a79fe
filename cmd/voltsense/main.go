package main

import (
	"os"

	"github.com/RMahshie/voltsense/internal/config"
	"github.com/RMahshie/voltsense/internal/telemetry"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var verbose bool

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "voltsense",
		Short:         "Serial AC telemetry monitor",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging()
			return bindFlags(cmd)
		},
		RunE: runServe,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("env", "dev", "environment name, selects .env.<env>")
	flags.String("serial", "", "serial port name (default: first attached port)")
	flags.Int("baud", 9600, "baud rate (9600 or 115200)")
	flags.Float64("multiplier", 1.0, "calibration multiplier (0.8-1.2)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().String("http-port", "8080", "HTTP listen port")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPortsCmd())
	rootCmd.AddCommand(newTailCmd())

	return rootCmd
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"env":        "ENVIRONMENT",
	"serial":     "SERIAL_PORT",
	"baud":       "BAUD_RATE",
	"multiplier": "CALIBRATION_MULTIPLIER",
	"http-port":  "PORT",
}

func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// startupCalibration clamps a configured multiplier into range instead of
// refusing to start. The baud rate is validated by the manager.
func startupCalibration(cfg config.SerialConfig) models.Calibration {
	multiplier := telemetry.ClampMultiplier(cfg.Multiplier)
	if multiplier != cfg.Multiplier {
		log.Warn().
			Float64("configured", cfg.Multiplier).
			Float64("using", multiplier).
			Msg("CALIBRATION_MULTIPLIER out of range, clamped")
	}
	return models.Calibration{Multiplier: multiplier, BaudRate: cfg.BaudRate}
}
