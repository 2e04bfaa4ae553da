package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/alert"
	"github.com/covwatch/covwatch/internal/config"
)

// Notifier is one delivery channel for fired alerts.
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev alert.Event) error
}

// Dispatcher fans a fired alert out to every configured channel off the
// ingestion critical path. Each channel delivery is attempted independently;
// a failure on one channel never prevents the others and never reaches the
// ingestion caller. Deliveries are best-effort: there is no retry, a dropped
// notification is an accepted cost of this design.
type Dispatcher struct {
	channels []Notifier
	timeout  time.Duration
	log      *zap.Logger
	pending  chan struct{} // counts in-flight dispatch goroutines for Close
}

const maxPendingDispatches = 256

func NewDispatcher(channels []Notifier, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	active := make([]Notifier, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			active = append(active, ch)
		}
	}
	return &Dispatcher{
		channels: active,
		timeout:  timeout,
		log:      log,
		pending:  make(chan struct{}, maxPendingDispatches),
	}
}

// Dispatch hands ev to a background goroutine and returns immediately.
// If the pending budget is exhausted the event is dropped and logged.
func (d *Dispatcher) Dispatch(ev alert.Event) {
	if len(d.channels) == 0 {
		return
	}
	select {
	case d.pending <- struct{}{}:
	default:
		d.log.Warn("notify_dropped",
			zap.String("rule", ev.RuleName),
			zap.String("scope", ev.Scope.String()),
			zap.Int("pending", maxPendingDispatches),
		)
		return
	}
	go func() {
		defer func() { <-d.pending }()
		d.deliver(ev)
	}()
}

func (d *Dispatcher) deliver(ev alert.Event) {
	var errs error
	for _, ch := range d.channels {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := ch.Send(ctx, ev)
		cancel()
		if err != nil {
			d.log.Error("notify_failed",
				zap.String("channel", ch.Name()),
				zap.String("rule", ev.RuleName),
				zap.String("scope", ev.Scope.String()),
				zap.Error(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		d.log.Info("notify_sent",
			zap.String("channel", ch.Name()),
			zap.String("rule", ev.RuleName),
			zap.String("scope", ev.Scope.String()),
		)
	}
	if errs != nil {
		// audit trail entry for partially failed fan-out
		d.log.Warn("notify_partial_failure",
			zap.String("event_id", ev.ID),
			zap.Error(errs),
		)
	}
}

// Drain blocks until every in-flight dispatch has finished or ctx expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for i := 0; i < maxPendingDispatches; i++ {
		select {
		case d.pending <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for i := 0; i < maxPendingDispatches; i++ {
		<-d.pending
	}
	return nil
}

// BuildChannels constructs the closed set of channel variants from
// configuration. Misconfigured channels are skipped with a log line rather
// than failing startup.
func BuildChannels(cfgs []config.ChannelConfig, log *zap.Logger) []Notifier {
	var out []Notifier
	for _, c := range cfgs {
		switch c.Type {
		case "slack":
			if n := NewSlack(c.URL(), c.SlackChannel); n != nil {
				out = append(out, n)
			} else {
				log.Warn("channel_skipped", zap.String("type", c.Type), zap.String("reason", "missing webhook url"))
			}
		case "webhook":
			if n := NewWebhook(c.URL()); n != nil {
				out = append(out, n)
			} else {
				log.Warn("channel_skipped", zap.String("type", c.Type), zap.String("reason", "missing webhook url"))
			}
		case "email":
			if n := NewEmail(c.SMTPServer, c.SMTPPort, c.From, c.To, c.User(), c.Password()); n != nil {
				out = append(out, n)
			} else {
				log.Warn("channel_skipped", zap.String("type", c.Type), zap.String("reason", "missing smtp server or recipients"))
			}
		case "telegram":
			n, err := NewTelegram(c.Token(), c.ChatID)
			if err != nil {
				log.Warn("channel_skipped", zap.String("type", c.Type), zap.Error(err))
				continue
			}
			out = append(out, n)
		case "kafka":
			if n := NewKafka(c.Brokers, c.Topic); n != nil {
				out = append(out, n)
			} else {
				log.Warn("channel_skipped", zap.String("type", c.Type), zap.String("reason", "missing brokers or topic"))
			}
		default:
			log.Warn("channel_skipped", zap.String("type", c.Type), zap.String("reason", "unknown type"))
		}
	}
	return out
}
