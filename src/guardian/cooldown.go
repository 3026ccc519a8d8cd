package guardian

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// CooldownBacking persists cooldown timestamps across process restarts.
type CooldownBacking interface {
	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)
	SaveCooldown(ctx context.Context, symbol string, at time.Time) error
}

// CooldownStore rate-limits critical-drawdown alerts per symbol. Reads hit
// the in-memory map; writes go to the map and, best effort, to the backing
// store. If the backing store is down the worst case after a restart is one
// extra alert per symbol, which beats a lost one.
type CooldownStore struct {
	mu       sync.Mutex
	last     map[string]time.Time
	backing  CooldownBacking
	interval time.Duration
}

func NewCooldownStore(backing CooldownBacking, interval time.Duration) *CooldownStore {
	return &CooldownStore{
		last:     make(map[string]time.Time),
		backing:  backing,
		interval: interval,
	}
}

// Restore pulls persisted cooldowns from the backing store. A load failure
// starts with an empty map instead of failing startup.
func (s *CooldownStore) Restore(ctx context.Context) {
	persisted, err := s.backing.LoadCooldowns(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not restore drawdown cooldowns, starting empty")
		return
	}
	if len(persisted) == 0 {
		return
	}

	s.mu.Lock()
	for symbol, at := range persisted {
		s.last[symbol] = at
	}
	s.mu.Unlock()

	logger.WithField("count", len(persisted)).Info("Restored drawdown cooldowns")
}

// ShouldSend reports whether a critical-drawdown alert for the symbol is
// allowed now: no prior alert, or the full interval has elapsed.
func (s *CooldownStore) ShouldSend(symbol string, now time.Time) bool {
	s.mu.Lock()
	last, ok := s.last[symbol]
	s.mu.Unlock()

	if !ok {
		return true
	}
	return now.Sub(last) >= s.interval
}

// MarkSent records that an alert just went out. The in-memory entry is
// authoritative for this process; persistence failures are logged and
// swallowed.
func (s *CooldownStore) MarkSent(ctx context.Context, symbol string, now time.Time) {
	err := s.backing.SaveCooldown(ctx, symbol, now)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"symbol": symbol,
		}).WithError(err).Error("Failed to persist drawdown cooldown")
	}

	s.mu.Lock()
	s.last[symbol] = now
	s.mu.Unlock()
}
