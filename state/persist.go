package state

import (
	"encoding/json"
	"os"
	"time"
)

// persisted is the part of the store that survives restarts: the kill
// switch and the account selector.
type persisted struct {
	TradingEnabled bool      `json:"trading_enabled"`
	EmergencyStop  bool      `json:"emergency_stop"`
	StopReason     string    `json:"stop_reason,omitempty"`
	Account        string    `json:"account"`
	LastSaved      time.Time `json:"last_saved"`
}

func (s *Store) persist() {
	if s.persistPath == "" {
		return
	}

	s.flagsMu.Lock()
	p := persisted{
		TradingEnabled: s.tradingEnabled,
		EmergencyStop:  s.emergencyStop,
		StopReason:     s.stopReason,
		Account:        s.account,
		LastSaved:      s.clock.Now().UTC(),
	}
	s.flagsMu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(s.persistPath, data, 0o644); err != nil && s.log != nil {
		s.log.WithComponent("state").WithError(err).Warn("persist state")
	}
}

func (s *Store) loadPersisted() {
	data, err := os.ReadFile(s.persistPath)
	if err != nil {
		return // first run
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		if s.log != nil {
			s.log.WithComponent("state").WithError(err).Warn("corrupt state file ignored")
		}
		return
	}

	s.flagsMu.Lock()
	s.tradingEnabled = p.TradingEnabled
	s.emergencyStop = p.EmergencyStop
	s.stopReason = p.StopReason
	if p.Account != "" {
		s.account = p.Account
	}
	s.flagsMu.Unlock()
}
