package command

import (
	"context"
	"fmt"
	"modbot/internal/core/domain"
	"time"

	"github.com/rs/zerolog/log"
)

type LatencySource func() time.Duration

type Ping struct {
	latency LatencySource
}

func NewPing(latency LatencySource) *Ping {
	return &Ping{latency: latency}
}

func (p *Ping) Description() string {
	return "Check the bot's latency"
}

func (p *Ping) Respond(_ context.Context, event *domain.InvocationEvent) (domain.Reply, error) {
	log.Debug().Str("eventId", event.EventID).Str("command", "ping").Msg("handling request")

	if p.latency == nil || p.latency() < 0 {
		return domain.Reply{Text: "🏓 Pong! Latency: N/A"}, nil
	}

	return domain.Reply{Text: fmt.Sprintf("🏓 Pong! Latency: %dms", p.latency().Milliseconds())}, nil
}
