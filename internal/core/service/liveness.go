package service

import (
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"time"
)

// Liveness exposes a read-only snapshot of the connection for health reporting.
type Liveness struct {
	supervisor *Supervisor
	transport  port.Transport
}

func NewLiveness(supervisor *Supervisor, transport port.Transport) *Liveness {
	return &Liveness{supervisor: supervisor, transport: transport}
}

func (l *Liveness) State() domain.ConnectionState {
	return l.supervisor.State()
}

func (l *Liveness) Ready() bool {
	return l.supervisor.State() == domain.Connected && l.transport.Ready()
}

func (l *Liveness) Closed() bool {
	return l.supervisor.State() == domain.Closed
}

func (l *Liveness) Latency() time.Duration {
	return l.transport.Latency()
}

func (l *Liveness) Name() string {
	return l.transport.Name()
}

func (l *Liveness) Origins() int {
	return len(l.transport.Origins())
}
