package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WessleyAI/chainrisk/pkg/config"
)

// cli carries state shared by every subcommand once the root has loaded
// configuration.
type cli struct {
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "chainrisk",
		Short: "Supply-chain risk propagation and resilience engine",
		Long: `chainrisk analyzes a supply-chain graph: how a disruption propagates
to components and products, how resilient each part is, and which
risk events deserve attention first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (YAML)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json or text")
	pf.String("graph-backend", "neo4j", "graph backend: neo4j or memory")
	pf.String("fixture", "", "fixture file seeding the memory graph backend")
	pf.String("nats-url", "", "NATS server URL (overrides nats.url)")
	_ = c.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = c.v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = c.v.BindPFlag("graph.backend", pf.Lookup("graph-backend"))
	_ = c.v.BindPFlag("graph.fixture", pf.Lookup("fixture"))
	_ = c.v.BindPFlag("nats.url", pf.Lookup("nats-url"))

	root.AddCommand(
		newServeCmd(c),
		newImpactCmd(c),
		newResilienceCmd(c),
		newTrendCmd(c),
		newPrioritizeCmd(c),
		newPathsCmd(c),
		newImportCmd(c),
		newWatchCmd(c),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	return nil
}

func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
