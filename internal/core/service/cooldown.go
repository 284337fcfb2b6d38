package service

import (
	"context"
	"fmt"
	"modbot/internal/core/domain"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type cooldownEntry struct {
	limiter  *rate.Limiter
	per      time.Duration
	lastUsed time.Time
}

// Cooldowns tracks per-principal usage of rate limited commands.
type Cooldowns struct {
	limiters map[string]*cooldownEntry
	mutex    sync.Mutex
	now      func() time.Time
}

func NewCooldowns(ctx context.Context, sweepEvery time.Duration) *Cooldowns {
	c := &Cooldowns{
		limiters: make(map[string]*cooldownEntry),
		now:      time.Now,
	}

	if sweepEvery > 0 {
		go c.SweepIdle(ctx, sweepEvery)
	}

	return c
}

func CooldownKey(kind domain.InvocationKind, name, principalID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, name, principalID)
}

// Take consumes one use of key. When none is left it returns how long until the next one.
func (c *Cooldowns) Take(key string, cd domain.Cooldown) (time.Duration, bool) {
	if !cd.Enabled() {
		return 0, true
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	e, ok := c.limiters[key]
	if !ok {
		e = &cooldownEntry{
			limiter: rate.NewLimiter(rate.Every(cd.Per/time.Duration(cd.Rate)), cd.Rate),
			per:     cd.Per,
		}
		c.limiters[key] = e
	}
	e.lastUsed = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return cd.Per, false
	}

	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay, false
	}

	return 0, true
}

func (c *Cooldowns) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.limiters)
}

// SweepIdle forgets limiters that have been idle for longer than their window.
func (c *Cooldowns) SweepIdle(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := c.sweep()
			log.Debug().Int("removed", removed).Msg("swept idle cooldowns")
		case <-ctx.Done():
			log.Debug().Msg("stopping cooldown sweeper")
			return
		}
	}
}

func (c *Cooldowns) sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.limiters {
		if now.Sub(e.lastUsed) > e.per {
			delete(c.limiters, key)
			removed++
		}
	}

	return removed
}
