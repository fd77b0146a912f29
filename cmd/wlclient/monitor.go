package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/internal/debug"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the compositor's globals come and go",
	Long: `monitor stays connected to the compositor and logs every global that is
added or removed until interrupted. If metrics are enabled in the config,
the connection's Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var opts []wl.Option
		reg := prometheus.NewRegistry()
		if cfg.Metrics.Enabled {
			opts = append(opts, wl.WithRegisterer(reg))
		}

		c, r, err := connect(opts...)
		if err != nil {
			return err
		}
		defer c.Disconnect()

		logger := debug.Logger.WithPrefix("monitor")
		if logger.GetLevel() > log.InfoLevel {
			logger.SetLevel(log.InfoLevel)
		}
		for _, g := range r.Globals() {
			logger.Info("global", "name", g.Name, "interface", g.Interface, "version", g.Version)
		}
		r.OnGlobal(func(g wl.Global) {
			logger.Info("global added", "name", g.Name, "interface", g.Interface, "version", g.Version)
		})
		r.OnGlobalRemove(func(g wl.Global) {
			logger.Info("global removed", "name", g.Name, "interface", g.Interface)
		})

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error { return dispatchLoop(ctx, c) })
		if cfg.Metrics.Enabled {
			eg.Go(func() error { return serveMetrics(ctx, reg, cfg.Metrics.Address) })
		}

		err = eg.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// dispatchLoop waits for the compositor socket to become readable and
// dispatches events until ctx is done or the connection fails.
func dispatchLoop(ctx context.Context, c *wl.Connection) error {
	fd, err := c.Fd()
	if err != nil {
		return err
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, err := unix.Poll(fds, 250)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if fds[0].Revents == 0 {
			continue
		}

		_, err = c.Dispatch()
		if err != nil {
			if c.Connected() {
				debug.Logger.Warn("dispatch", "err", err)
				continue
			}
			return err
		}
	}
}

func serveMetrics(ctx context.Context, reg *prometheus.Registry, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()
	debug.Logger.Info("serving metrics", "address", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
