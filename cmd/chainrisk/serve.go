package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/chainrisk/engine/recalc"
	"github.com/WessleyAI/chainrisk/pkg/mid"
	pkgresilience "github.com/WessleyAI/chainrisk/pkg/resilience"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume risk events from NATS and recalculate affected entities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.withApp(ctx, func(a *app) error { return serve(ctx, a) })
		},
	}
	cmd.Flags().String("ops-addr", "", "address of the /metrics and /healthz endpoint (overrides ops.addr)")
	_ = c.v.BindPFlag("ops.addr", cmd.Flags().Lookup("ops-addr"))
	return cmd
}

func serve(ctx context.Context, a *app) error {
	coord, err := a.coordinator()
	if err != nil {
		return err
	}
	pipe, err := a.pipeline()
	if err != nil {
		return err
	}

	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name("chainrisk"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			a.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			a.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	}
	if a.cfg.NATS.DrainTimeout > 0 {
		opts = append(opts, nats.DrainTimeout(a.cfg.NATS.DrainTimeout))
	}
	nc, err := nats.Connect(a.cfg.NATS.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	_, err = recalc.StartConsumer(nc, a.cfg.NATS.Queue, recalc.ConsumerDeps{
		Coordinator: coord,
		Assessor:    pipe,
		Policy:      a.policy,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         a.cfg.Ops.Addr,
		Handler:      opsHandler(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("ops server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	if err := drain(nc, closed, a.cfg.NATS.DrainTimeout); err != nil {
		a.logger.Warn("nats drain", "error", err)
	} else {
		a.logger.Info("nats drained")
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, srv.Shutdown(shutCtx))
}

// drain stops delivery on nc and blocks until in-flight handlers have
// returned and their publishes are flushed, or until timeout. closed must
// be signalled by nc's ClosedHandler. The graph driver stays open until
// drain returns.
func drain(nc *nats.Conn, closed <-chan struct{}, timeout time.Duration) error {
	if err := nc.Drain(); err != nil {
		return fmt.Errorf("start drain: %w", err)
	}
	if timeout <= 0 {
		<-closed
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-closed:
		return nil
	case <-t.C:
		nc.Close()
		return fmt.Errorf("in-flight batches still running after %s", timeout)
	}
}

func opsHandler(a *app) http.Handler {
	return mid.Chain(opsMux(a), mid.Recover(a.logger), mid.Trace("chainrisk-ops"), mid.Logger(a.logger))
}

func opsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := a.guard.BreakerState()
		status := http.StatusOK
		if state == pkgresilience.StateOpen {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": http.StatusText(status), "graph_breaker": state.String()})
	})
	return mux
}
