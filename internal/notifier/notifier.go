// Package notifier fans monitor events out to their notification
// channels: webhooks with retry and a per-attempt delivery audit, and
// email over SMTP. Delivery always runs after the store's write lock is
// released, and failures never propagate to the caller.
package notifier

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/watchpost/watchpost/internal/config"
	"github.com/watchpost/watchpost/internal/events"
	"github.com/watchpost/watchpost/internal/safenet"
	"github.com/watchpost/watchpost/internal/storage"
)

// eventMeta fixes the emoji and label used in human-facing payloads.
var eventMeta = map[string]struct{ Emoji, Label string }{
	events.IncidentCreated:   {"🔴", "DOWN"},
	events.IncidentResolved:  {"✅", "RESOLVED"},
	events.IncidentReminder:  {"🔁", "STILL DOWN"},
	events.IncidentEscalated: {"🚨", "ESCALATED"},
	events.MonitorDegraded:   {"🟡", "DEGRADED"},
	events.MonitorRecovered:  {"🟢", "RECOVERED"},
}

func metaFor(event string) struct{ Emoji, Label string } {
	if m, ok := eventMeta[event]; ok {
		return m
	}
	return struct{ Emoji, Label string }{"🔔", "NOTICE"}
}

// Service resolves a monitor's enabled channels and delivers to each in
// its own goroutine.
type Service struct {
	store  storage.Store
	smtp   config.SMTPConfig
	client *http.Client
	logger *slog.Logger

	backoffs []time.Duration
	wg       sync.WaitGroup
}

func NewService(store storage.Store, smtp config.SMTPConfig, allowPrivateTargets bool, logger *slog.Logger) *Service {
	return &Service{
		store: store,
		smtp:  smtp,
		client: &http.Client{
			Timeout: webhookTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: webhookTimeout,
					Control: safenet.MaybeDialControl(allowPrivateTargets),
				}).DialContext,
			},
		},
		logger:   logger,
		backoffs: webhookBackoffs,
	}
}

// Dispatch delivers event to every enabled channel of mon. It returns
// immediately; deliveries run in the background and are tracked so a
// shutdown can drain them.
func (s *Service) Dispatch(event string, mon *storage.Monitor, inc *storage.Incident) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(event, mon, inc)
	}()
}

func (s *Service) deliver(event string, mon *storage.Monitor, inc *storage.Incident) {
	ctx := context.Background()
	channels, err := s.store.ListEnabledMonitorChannels(ctx, mon.ID)
	if err != nil {
		s.logger.Error("list notification channels", "monitor_id", mon.ID, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch *storage.NotificationChannel) {
			defer wg.Done()
			switch ch.Type {
			case storage.ChannelWebhook:
				s.deliverWebhook(ctx, event, mon, inc, ch)
			case storage.ChannelEmail:
				s.deliverEmail(event, mon, inc, ch)
			default:
				s.logger.Warn("unknown channel type", "channel_id", ch.ID, "type", ch.Type)
			}
		}(ch)
	}
	wg.Wait()
}

// EventTest is the synthetic event delivered by the channel test
// endpoint. It renders with the fallback notice emoji and label.
const EventTest = "notification.test"

// Test delivers a synthetic event to a single channel regardless of its
// enabled flag, so a channel can be verified before it is turned on.
func (s *Service) Test(ch *storage.NotificationChannel, mon *storage.Monitor) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		switch ch.Type {
		case storage.ChannelWebhook:
			s.deliverWebhook(context.Background(), EventTest, mon, nil, ch)
		case storage.ChannelEmail:
			s.deliverEmail(EventTest, mon, nil, ch)
		}
	}()
}

// Drain waits for in-flight deliveries to finish, up to timeout.
func (s *Service) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("notification drain timed out", "after", timeout)
	}
}
