package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher pushes board updates to screens subscribed on
// <prefix>.<station>.<kind>.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	station string
	logger  *slog.Logger
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix, station string, logger *slog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	logger = logger.With(slog.String("component", "nats"))
	nc, err := nats.Connect(url,
		nats.Name("bus-signage"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, station: station, logger: logger, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Publish marshals msg as JSON and sends it on the subject for kind.
func (p *NATSPublisher) Publish(kind string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, p.station, kind)
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	p.logger.Debug("nats publish",
		slog.String("subject", subject),
		slog.Int("bytes", len(b)),
		slog.Duration("took", time.Since(start)))
	return err
}

func (p *NATSPublisher) PublishBoard(board any) error { return p.Publish("board", board) }
func (p *NATSPublisher) PublishClock(msg any) error   { return p.Publish("clock", msg) }

// Subject joins sanitised tokens into a NATS subject.
func Subject(prefix, station, kind string) string {
	return strings.Join([]string{subjectToken(prefix), subjectToken(station), subjectToken(kind)}, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
