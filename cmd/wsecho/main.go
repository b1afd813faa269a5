// Command wsecho runs a WebSocket echo server.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coder/wsupgrade"
)

type config struct {
	addr           string
	protocols      []string
	maxMessageSize int64
	rate           float64
	burst          int
}

func main() {
	var (
		cfg       config
		protocols string
		debug     bool
	)
	flag.StringVar(&cfg.addr, "addr", "localhost:8080", "address to listen on")
	flag.StringVar(&protocols, "protocols", "echo", "comma separated subprotocols to accept, in order of preference")
	flag.Int64Var(&cfg.maxMessageSize, "max-message-size", 1<<20, "largest message accepted in bytes")
	flag.Float64Var(&cfg.rate, "rate", 10, "messages echoed per second on each connection")
	flag.IntVar(&cfg.burst, "burst", 10, "messages that may be echoed at once above the rate")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	if protocols != "" {
		cfg.protocols = strings.Split(protocols, ",")
	}

	log := newLogger(os.Stderr, debug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, log, cfg)
	if err != nil {
		log.Fatal(ctx, "wsecho failed", slog.Error(err))
	}
}

// newLogger writes human readable logs to w, including debug logs if debug is set.
func newLogger(w io.Writer, debug bool) slog.Logger {
	log := slog.Make(sloghuman.Sink(w))
	if debug {
		log = log.Leveled(slog.LevelDebug)
	}
	return log
}

func run(ctx context.Context, log slog.Logger, cfg config) error {
	l, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return err
	}
	log.Info(ctx, "listening", slog.F("addr", "ws://"+l.Addr().String()))

	reg := prometheus.NewRegistry()
	m := newMetrics(reg)

	var g wsupgrade.Grace
	mux := http.NewServeMux()
	mux.Handle("/", g.Handler(newEchoHandler(log, cfg, m)))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 10,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	select {
	case err = <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err = s.Shutdown(ctx)
	if err != nil {
		return err
	}
	err = g.Shutdown(ctx)
	if err != nil {
		return err
	}

	err = <-errc
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
