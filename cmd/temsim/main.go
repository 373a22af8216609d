package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/temsim/internal/scenario"
)

var rootCmd = &cobra.Command{
	Use:   "temsim",
	Short: "Two-seat threat and error management trainer",
	Long: "temsim runs shared flight-deck training rooms. Two operators, controlling and\n" +
		"monitoring, brief threats, watch the gauges for precursors and run the QRH when\n" +
		"alerts fire. Rooms are served over websocket locally and through a portal relay.",
	PersistentPreRunE: setupLogging,
	RunE:              runServer,
	SilenceUsage:      true,
}

var (
	flagLogLevel  string
	flagPretty    bool
	flagScenarios string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&flagPretty, "pretty", false, "human-readable console logs")
	flags.StringVar(&flagScenarios, "scenarios", os.Getenv("TEMSIM_SCENARIOS"), "scenario library YAML (embedded library when empty)")

	registerServeFlags(rootCmd)
	rootCmd.AddCommand(replayCmd, scenariosCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute temsim command")
	}
}

func setupLogging(*cobra.Command, []string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(flagLogLevel))
	if err != nil {
		return err
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if flagPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}

func loadLibrary() (*scenario.Library, error) {
	if flagScenarios == "" {
		return scenario.Default()
	}
	return scenario.LoadFile(flagScenarios)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
