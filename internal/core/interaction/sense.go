package interaction

import (
	"sync"
	"time"
)

// SenseMode controls how often a sensed target may be interacted with.
type SenseMode uint8

const (
	// Single allows one interaction per trigger.
	Single SenseMode = iota
	// Continuous allows interactions for as long as the target is sensed.
	Continuous
	// Repeatable allows another interaction once the cooldown has passed.
	Repeatable
	// OneTime allows exactly one interaction until Reset.
	OneTime
)

func (m SenseMode) String() string {
	switch m {
	case Single:
		return "single"
	case Continuous:
		return "continuous"
	case Repeatable:
		return "repeatable"
	case OneTime:
		return "one_time"
	default:
		return "unknown"
	}
}

type SenseConfig struct {
	Type     Type          `yaml:"type"`
	Mode     SenseMode     `yaml:"mode"`
	Enabled  bool          `yaml:"enabled"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// SenseInteraction tracks availability for a sensed target. Embed it in a
// target to make the target a Gate and a Recorder.
type SenseInteraction struct {
	Config SenseConfig

	mu        sync.Mutex
	last      time.Time
	count     int
	completed bool
}

func NewSenseInteraction(cfg SenseConfig) *SenseInteraction {
	return &SenseInteraction{Config: cfg}
}

func (s *SenseInteraction) Available(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Config.Enabled || s.completed {
		return false
	}
	switch s.Config.Mode {
	case OneTime:
		return s.count == 0
	case Repeatable:
		return s.last.IsZero() || now.Sub(s.last) >= s.Config.Cooldown
	}
	return true
}

// RecordInteraction counts a use. A OneTime interaction completes on its
// first use.
func (s *SenseInteraction) RecordInteraction(now time.Time) {
	s.mu.Lock()
	s.last = now
	s.count++
	if s.Config.Mode == OneTime {
		s.completed = true
	}
	s.mu.Unlock()
}

// Complete marks the interaction as finished; it stays unavailable until Reset.
func (s *SenseInteraction) Complete() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
}

func (s *SenseInteraction) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *SenseInteraction) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *SenseInteraction) Reset() {
	s.mu.Lock()
	s.last = time.Time{}
	s.count = 0
	s.completed = false
	s.mu.Unlock()
}
