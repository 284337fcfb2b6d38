package service

import (
	"modbot/internal/core/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newTestCooldowns(clock *fakeClock) *Cooldowns {
	return &Cooldowns{
		limiters: make(map[string]*cooldownEntry),
		now:      clock.Now,
	}
}

func TestCooldowns_Take(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cooldowns := newTestCooldowns(clock)
	cd := domain.Cooldown{Rate: 1, Per: 5 * time.Second}
	key := CooldownKey(domain.TextPrefixed, "warn", "7")

	wait, ok := cooldowns.Take(key, cd)
	assert.True(t, ok)
	assert.Zero(t, wait)

	clock.Advance(2 * time.Second)
	wait, ok = cooldowns.Take(key, cd)
	assert.False(t, ok)
	assert.InDelta(t, float64(3*time.Second), float64(wait), float64(time.Millisecond))

	clock.Advance(4 * time.Second)
	_, ok = cooldowns.Take(key, cd)
	assert.True(t, ok)
}

func TestCooldowns_TakeIsPerKey(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cooldowns := newTestCooldowns(clock)
	cd := domain.Cooldown{Rate: 1, Per: time.Minute}

	_, ok := cooldowns.Take(CooldownKey(domain.TextPrefixed, "warn", "1"), cd)
	assert.True(t, ok)

	_, ok = cooldowns.Take(CooldownKey(domain.TextPrefixed, "warn", "2"), cd)
	assert.True(t, ok)

	_, ok = cooldowns.Take(CooldownKey(domain.StructuredInteraction, "warn", "1"), cd)
	assert.True(t, ok)

	_, ok = cooldowns.Take(CooldownKey(domain.TextPrefixed, "warn", "1"), cd)
	assert.False(t, ok)
}

func TestCooldowns_Burst(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cooldowns := newTestCooldowns(clock)
	cd := domain.Cooldown{Rate: 3, Per: 30 * time.Second}

	for i := 0; i < 3; i++ {
		_, ok := cooldowns.Take("k", cd)
		assert.True(t, ok, "use %d", i)
	}

	wait, ok := cooldowns.Take("k", cd)
	assert.False(t, ok)
	assert.InDelta(t, float64(10*time.Second), float64(wait), float64(time.Millisecond))
}

func TestCooldowns_Disabled(t *testing.T) {
	cooldowns := newTestCooldowns(&fakeClock{now: time.Now()})

	for i := 0; i < 5; i++ {
		_, ok := cooldowns.Take("k", domain.Cooldown{})
		assert.True(t, ok)
	}
	assert.Zero(t, cooldowns.Len())
}

func TestCooldowns_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cooldowns := newTestCooldowns(clock)

	cooldowns.Take("short", domain.Cooldown{Rate: 1, Per: time.Second})
	cooldowns.Take("long", domain.Cooldown{Rate: 1, Per: time.Hour})

	clock.Advance(time.Minute)

	assert.Equal(t, 1, cooldowns.sweep())
	assert.Equal(t, 1, cooldowns.Len())
}
