package command

import (
	"context"
	"fmt"
	"modbot/internal/core/domain"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"time"

	"github.com/rs/zerolog/log"
)

// StatusSource is the subset of transport state shown by botinfo.
type StatusSource interface {
	Name() string
	Origins() []string
	Latency() time.Duration
}

type BotInfo struct {
	status  StatusSource
	started time.Time
	version string
}

func NewBotInfo(status StatusSource, started time.Time, version string) *BotInfo {
	return &BotInfo{status: status, started: started, version: version}
}

func (b *BotInfo) Description() string {
	return "Show information about the bot"
}

const kb = 1024
const botInfoTemplate = `🤖 %s v%s
servers: %d
latency: %s
uptime: %s
allocated mem: %d KB
goroutines: %d
heap: %d KB
compiled with %s for %s-%s`
const metricCount = 2

func (b *BotInfo) Respond(_ context.Context, event *domain.InvocationEvent) (domain.Reply, error) {
	l := log.With().
		Str("eventId", event.EventID).
		Str("originId", event.OriginID).
		Str("command", "botinfo").
		Logger()

	l.Info().Msg("handling request")

	data := make([]metrics.Sample, metricCount)
	data[0] = metrics.Sample{Name: "/memory/classes/heap/objects:bytes"}
	data[1] = metrics.Sample{Name: "/memory/classes/total:bytes"}
	metrics.Read(data)

	var goos, goarch string
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "GOOS":
				goos = setting.Value
			case "GOARCH":
				goarch = setting.Value
			}
		}
	}

	name, latency, servers := "bot", "N/A", 0
	if b.status != nil {
		name = b.status.Name()
		servers = len(b.status.Origins())
		if d := b.status.Latency(); d >= 0 {
			latency = fmt.Sprintf("%dms", d.Milliseconds())
		}
	}

	return domain.Reply{
		Text: fmt.Sprintf(
			botInfoTemplate,
			name, b.version,
			servers,
			latency,
			time.Since(b.started).Truncate(time.Second),
			sampleKB(data[1]),
			runtime.NumGoroutine(),
			sampleKB(data[0]),
			runtime.Version(), goos, goarch,
		),
		Ephemeral: event.Kind == domain.StructuredInteraction,
	}, nil
}

func sampleKB(s metrics.Sample) uint64 {
	if s.Value.Kind() != metrics.KindUint64 {
		return 0
	}

	return s.Value.Uint64() / kb
}
