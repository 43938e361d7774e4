// Command server is a net.Conn adapter around the h2 engine: it owns
// the listener, the accept loop, and metrics/config plumbing that the
// I/O-agnostic core deliberately knows nothing about.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chronnie/h2"
	"github.com/chronnie/h2/internal/adapter"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (read at startup; changes are re-read but not applied to the running server)")
	flag.Parse()

	cs, err := loadConfigStore(*configPath)
	if err != nil {
		h2.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cs.watch(); err != nil {
		h2.Logger.Warn().Err(err).Msg("config hot-reload disabled")
	}

	fc := cs.get()
	metrics := h2.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		h2.Logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	handler := func(ctx *h2.StreamContext) {
		ctx.RespondWithString(200, []h2.HeaderField{
			{Name: "content-type", Value: "text/plain"},
		}, "hello from h2\n")
	}
	onError := func(err error) {
		h2.LogError(&h2.Logger, err, "connection")
	}
	srv := h2.Create(fc.toEngineConfig(), onError, handler)

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		return http.ListenAndServe(fc.MetricsAddr, mux)
	})

	group.Go(func() error {
		return acceptLoop(ctx, fc.Addr, fc.MaxConcurrentConns, srv)
	})

	if err := group.Wait(); err != nil {
		h2.Logger.Fatal().Err(err).Msg("server exited")
	}
}

func acceptLoop(ctx context.Context, addr string, maxConns int, srv *h2.Server) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	h2.Logger.Info().Str("addr", addr).Msg("listening")

	sem := semaphore.NewWeighted(int64(maxConns))
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			nc.Close()
			return err
		}
		go func() {
			defer sem.Release(1)
			conn := srv.NewConnection()
			if err := adapter.Drive(nc, conn, nil); err != nil {
				h2.LogError(&h2.Logger, err, "connection_closed")
			}
		}()
	}
}
