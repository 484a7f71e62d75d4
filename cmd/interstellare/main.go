package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/interstellare/server/internal/config"
)

var (
	// Config file, falls back to INTERSTELLARE_CONFIG
	configPath string

	// serve overrides
	bindAddr     string
	scenarioFile string
	scriptFile   string

	// client target
	serverAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "interstellare",
		Short:         "real-time n-body gravity simulation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (toml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the simulation and serve viewers",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&bindAddr, "addr", "", "bind address, overrides network.bind_address")
		c.Flags().StringVar(&scenarioFile, "scenario", "", "initial bodies from a YAML table")
		c.Flags().StringVar(&scriptFile, "script", "", "initial bodies from a Lua scenario")
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "print the event stream of a running server",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&serverAddr, "addr", "127.0.0.1:7878", "server address")

	sendCmd := &cobra.Command{
		Use:   "send <envelope>",
		Short: "post a command envelope, - reads it from stdin",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}
	sendCmd.Flags().StringVar(&serverAddr, "addr", "127.0.0.1:7878", "server address")

	rootCmd.AddCommand(serveCmd, watchCmd, sendCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            Interstellare  v0.1.0          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        n-body gravity · live stream       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value any) {
	valStr := fmt.Sprint(value)
	dotsLen := 42 - len(label) - len(valStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), valStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
