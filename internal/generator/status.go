package generator

import "time"

type HealthState string

const (
	HealthHealthy HealthState = "healthy"
	HealthError   HealthState = "error"
)

// StatusReport is the externally visible state of the generation service.
type StatusReport struct {
	Running       bool         `json:"running"`
	Health        HealthState  `json:"health"`
	LastPollAt    time.Time    `json:"last_poll_at"`
	LastSignalAt  time.Time    `json:"last_signal_at"`
	SignalsToday  int          `json:"signals_today"`
	SignalsHour   int          `json:"signals_last_hour"`
	DedupEntries  int          `json:"dedup_entries"`
	Counters      Counters     `json:"counters"`
	RecentErrors  []CycleError `json:"recent_errors"`
}

// Status snapshots the service state. Health flips to error once the last
// ErrorWindow cycles all recorded exceptions.
func (s *Service) Status() StatusReport {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	health := HealthHealthy
	if s.cfg.ErrorWindow > 0 && s.cycleErrs >= s.cfg.ErrorWindow {
		health = HealthError
	}
	errs := make([]CycleError, len(s.recentErrors))
	copy(errs, s.recentErrors)

	return StatusReport{
		Running:      s.running,
		Health:       health,
		LastPollAt:   s.lastPollAt,
		LastSignalAt: s.lastSignalAt,
		SignalsToday: s.signalsToday,
		SignalsHour:  s.limiter.CountLastHour(now),
		DedupEntries: s.dedup.Len(),
		Counters:     s.counters,
		RecentErrors: errs,
	}
}
