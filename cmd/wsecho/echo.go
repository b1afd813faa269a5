package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"cdr.dev/slog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/coder/wsupgrade"
)

type metrics struct {
	upgrades   *prometheus.CounterVec
	active     prometheus.Gauge
	messages   *prometheus.CounterVec
	bytesTotal prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		upgrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsecho_upgrades_total",
				Help: "Upgrade requests by result",
			},
			[]string{"result"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsecho_connections",
				Help: "Connections currently being echoed",
			},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsecho_messages_total",
				Help: "Messages echoed by type",
			},
			[]string{"type"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wsecho_message_bytes_total",
				Help: "Payload bytes echoed",
			},
		),
	}

	reg.MustRegister(m.upgrades, m.active, m.messages, m.bytesTotal)
	return m
}

// newEchoHandler upgrades every request and echoes each data message back,
// limited to cfg.rate messages a second per connection.
func newEchoHandler(log slog.Logger, cfg config, m *metrics) http.Handler {
	log = log.Named("echo")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := wsupgrade.FromRequest(w, r)
		if err != nil {
			m.upgrades.WithLabelValues("rejected").Inc()
			var rej *wsupgrade.Rejection
			if errors.As(err, &rej) {
				log.Debug(r.Context(), "rejected upgrade", slog.F("remote_addr", r.RemoteAddr), slog.F("kind", rej.Kind.String()))
				rej.Response().ServeHTTP(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		m.upgrades.WithLabelValues("accepted").Inc()

		remote := r.RemoteAddr
		resp := u.Protocols(cfg.protocols...).
			MaxMessageSize(cfg.maxMessageSize).
			Logger(log).
			OnUpgrade(func(ctx context.Context, c *wsupgrade.Conn) {
				defer c.Close(ctx)

				m.active.Inc()
				defer m.active.Dec()

				log := log.With(slog.F("remote_addr", remote), slog.F("protocol", c.Protocol()))
				err := echo(ctx, c, cfg, m)
				if err != nil {
					log.Info(ctx, "echo ended", slog.Error(err))
					return
				}
				log.Debug(ctx, "echo ended")
			})
		resp.ServeHTTP(w, r)
	})
}

func echo(ctx context.Context, c *wsupgrade.Conn, cfg config, m *metrics) error {
	if len(cfg.protocols) > 0 && c.Protocol() == "" {
		return c.CloseWith(ctx, wsupgrade.ClosePolicy, "client must speak a supported subprotocol")
	}

	l := rate.NewLimiter(rate.Limit(cfg.rate), cfg.burst)
	for {
		msg, err := c.Receive(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Type != wsupgrade.MessageText && msg.Type != wsupgrade.MessageBinary {
			continue
		}

		err = echoOne(ctx, c, l, msg)
		if err != nil {
			return err
		}
		m.messages.WithLabelValues(msg.Type.String()).Inc()
		m.bytesTotal.Add(float64(len(msg.Data)))
	}
}

// echoOne has 10s to send msg back.
func echoOne(ctx context.Context, c *wsupgrade.Conn, l *rate.Limiter, msg wsupgrade.Message) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := l.Wait(ctx)
	if err != nil {
		return err
	}
	return c.Send(ctx, msg)
}
