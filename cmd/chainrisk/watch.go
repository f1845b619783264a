package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/chainrisk/engine/recalc"
	"github.com/WessleyAI/chainrisk/pkg/natsutil"
)

var watchStreams = map[string]string{
	"alerts":  recalc.SubjectAlerts,
	"impact":  recalc.SubjectImpactScored,
	"reports": recalc.SubjectRecalcCompleted,
	"dlq":     recalc.SubjectDLQ,
}

func newWatchCmd(c *cli) *cobra.Command {
	var count int
	streams := make([]string, 0, len(watchStreams))
	for k := range watchStreams {
		streams = append(streams, k)
	}
	sort.Strings(streams)

	cmd := &cobra.Command{
		Use:       "watch [stream]",
		Short:     "Print engine output from NATS as JSON lines",
		Long:      fmt.Sprintf("Subscribes to one output stream of a running serve and prints each\nmessage as a JSON line. Streams: %v (default alerts).", streams),
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: streams,
		RunE: func(cmd *cobra.Command, args []string) error {
			stream := "alerts"
			if len(args) == 1 {
				stream = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, c, watchStreams[stream], count, json.NewEncoder(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many messages; 0 runs until interrupted")
	return cmd
}

func watch(ctx context.Context, c *cli, subject string, count int, enc *json.Encoder) error {
	nc, err := nats.Connect(c.cfg.NATS.URL, nats.Name("chainrisk-watch"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	msgs := make(chan json.RawMessage)
	done := make(chan struct{})
	defer close(done)
	sub, err := natsutil.Subscribe[json.RawMessage](nc, subject, func(_ context.Context, m json.RawMessage) error {
		select {
		case msgs <- m:
		case <-done:
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.logger.Info("watching", "subject", subject)

	for n := 0; count <= 0 || n < count; n++ {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			if err := enc.Encode(m); err != nil {
				return fmt.Errorf("encode output: %w", err)
			}
		}
	}
	return nil
}
