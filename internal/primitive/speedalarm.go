package primitive

import (
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// SpeedAlarm fires when more than MaximumSpeed units arrive within any
// sliding Period.
//
// Each positive input is stamped and added to a running total. Once the
// total exceeds the maximum, entries older than the window are trimmed; if
// the total still exceeds it, the alarm fires once and clears its state.
// A zero parameter clears state without firing.
type SpeedAlarm struct {
	base
	target *signal.Target
	src    *signal.Source

	maximum int64
	period  time.Duration

	mu      sync.Mutex
	entries []speedEntry
	total   int64
}

type speedEntry struct {
	value int64
	at    time.Time
}

func newSpeedAlarm(env *Env) *SpeedAlarm {
	s := &SpeedAlarm{base: base{kind: KindSpeedAlarm, env: env}}
	s.target = signal.NewTarget(s, s.onSignal)
	s.src = signal.NewSource(s, KindSpeedAlarm, env.logger())
	return s
}

// Setup implements Primitive. Period is in seconds.
func (s *SpeedAlarm) Setup(cfg Config, _ map[string]Primitive) error {
	maximum, err := cfg.requireInt(s.kind, "MaximumSpeed")
	if err != nil {
		return err
	}
	if maximum <= 0 {
		return cfgErr(s.kind, "MaximumSpeed", "must be positive, got %d", maximum)
	}
	period, err := cfg.requireInt(s.kind, "Period")
	if err != nil {
		return err
	}
	if period <= 0 {
		return cfgErr(s.kind, "Period", "must be positive, got %d", period)
	}
	s.maximum = maximum
	s.period = time.Duration(period) * time.Second
	return nil
}

// SameConfig implements Primitive.
func (s *SpeedAlarm) SameConfig(cfg Config, _ map[string]Primitive) bool {
	maximum, err := cfg.requireInt(s.kind, "MaximumSpeed")
	if err != nil || maximum != s.maximum {
		return false
	}
	period, err := cfg.requireInt(s.kind, "Period")
	return err == nil && time.Duration(period)*time.Second == s.period
}

func (s *SpeedAlarm) Target() *signal.Target { return s.target }
func (s *SpeedAlarm) Source() *signal.Source { return s.src }

func (s *SpeedAlarm) onSignal(param, context any) {
	value, ok := asInt(param)
	if !ok {
		s.warn("speed alarm parameter is not an integer", "param", param)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == 0 {
		s.entries = nil
		s.total = 0
		return
	}
	if value < 0 {
		s.warn("speed alarm parameter is negative", "param", value)
		return
	}

	now := s.env.now()
	s.entries = append(s.entries, speedEntry{value: value, at: now})
	s.total += value

	if s.total <= s.maximum {
		return
	}

	cutoff := now.Add(-s.period)
	for len(s.entries) > 0 && s.entries[0].at.Before(cutoff) {
		s.total -= s.entries[0].value
		s.entries = s.entries[1:]
	}
	if s.total <= s.maximum {
		return
	}

	s.entries = nil
	s.total = 0
	s.src.Trigger(context)
}

var _ Primitive = (*SpeedAlarm)(nil)
