package marketdata

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LivePosition is the broker-synced view of one holding. Prices are derived
// from equity/quantity the way the sync service stores them.
type LivePosition struct {
	CurrentPrice  *decimal.Decimal
	Equity        *decimal.Decimal
	PercentChange *decimal.Decimal
	EquityChange  *decimal.Decimal
	UpdatedAt     *time.Time
}

// StopOrder is a broker-side protective order discovered for a symbol.
type StopOrder struct {
	StopPrice decimal.Decimal
}

// AccountState is the broker-synced account balance snapshot.
type AccountState struct {
	BuyingPower decimal.Decimal
	Cash        decimal.Decimal
	TotalEquity decimal.Decimal
	UpdatedAt   time.Time
}

// Client reads broker position/account data out of Redis and owns the
// drawdown-cooldown hash used by the guardian across restarts.
type Client struct {
	rdb *redis.Client
	cfg Config
}

func NewClient() *Client {
	cfg := GetConfig()
	return &Client{
		cfg: cfg,
		rdb: redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DB:           cfg.RedisDB,
			Password:     cfg.RedisPassword,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
	}
}

// Connect verifies the connection is usable. Startup fails without the cache;
// the guardian is useless blind.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	logger.WithField("addr", c.cfg.RedisAddr).Info("Connected to Redis")
	return nil
}

// Close releases the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// rawPosition is the JSON payload the broker sync writes per symbol.
type rawPosition struct {
	Symbol        string `json:"symbol"`
	Quantity      string `json:"quantity"`
	Equity        string `json:"equity"`
	PercentChange string `json:"percent_change"`
	EquityChange  string `json:"equity_change"`
	UpdatedAt     string `json:"updated_at"`
}

// GetLivePosition returns the live market view for a symbol, or nil if the
// sync service has no data for it.
func (c *Client) GetLivePosition(ctx context.Context, symbol string) (*LivePosition, error) {
	data, err := c.rdb.HGet(ctx, c.cfg.PositionsKey, symbol).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s %s: %w", c.cfg.PositionsKey, symbol, err)
	}

	var raw rawPosition
	if err := json.UnmarshalFromString(data, &raw); err != nil {
		return nil, fmt.Errorf("decode position payload for %s: %w", symbol, err)
	}

	live := &LivePosition{}

	equity, eqErr := decimal.NewFromString(raw.Equity)
	quantity, qtyErr := decimal.NewFromString(raw.Quantity)
	if eqErr == nil {
		live.Equity = &equity
	}
	if eqErr == nil && qtyErr == nil && quantity.IsPositive() {
		price := equity.Div(quantity)
		live.CurrentPrice = &price
	}
	if pct, err := decimal.NewFromString(raw.PercentChange); err == nil {
		live.PercentChange = &pct
	}
	if chg, err := decimal.NewFromString(raw.EquityChange); err == nil {
		live.EquityChange = &chg
	}
	if raw.UpdatedAt != "" {
		ts, err := time.Parse(time.RFC3339, raw.UpdatedAt)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol":     symbol,
				"updated_at": raw.UpdatedAt,
			}).WithError(err).Warn("Could not parse position timestamp from Redis")
		} else {
			live.UpdatedAt = &ts
		}
	}

	return live, nil
}

// GetExternalStopOrder returns the broker-side stop order for a symbol, or
// nil when none exists.
func (c *Client) GetExternalStopOrder(ctx context.Context, symbol string) (*StopOrder, error) {
	data, err := c.rdb.HGet(ctx, c.cfg.StopOrdersKey, symbol).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s %s: %w", c.cfg.StopOrdersKey, symbol, err)
	}

	var raw struct {
		StopPrice string `json:"stop_price"`
	}
	if err := json.UnmarshalFromString(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stop order payload for %s: %w", symbol, err)
	}
	price, err := decimal.NewFromString(raw.StopPrice)
	if err != nil {
		return nil, fmt.Errorf("parse stop price %q for %s: %w", raw.StopPrice, symbol, err)
	}

	return &StopOrder{StopPrice: price}, nil
}

// GetAccountEquity returns the broker account balance snapshot, or nil when
// the sync service has not written one yet.
func (c *Client) GetAccountEquity(ctx context.Context) (*AccountState, error) {
	data, err := c.rdb.Get(ctx, c.cfg.BuyingPowerKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.cfg.BuyingPowerKey, err)
	}

	var raw struct {
		BuyingPower string `json:"buying_power"`
		Cash        string `json:"cash"`
		TotalEquity string `json:"total_equity"`
		UpdatedAt   string `json:"updated_at"`
	}
	if err := json.UnmarshalFromString(data, &raw); err != nil {
		return nil, fmt.Errorf("decode account payload: %w", err)
	}

	state := &AccountState{}
	if v, err := decimal.NewFromString(raw.BuyingPower); err == nil {
		state.BuyingPower = v
	}
	if v, err := decimal.NewFromString(raw.Cash); err == nil {
		state.Cash = v
	}
	if v, err := decimal.NewFromString(raw.TotalEquity); err == nil {
		state.TotalEquity = v
	}
	if ts, err := time.Parse(time.RFC3339, raw.UpdatedAt); err == nil {
		state.UpdatedAt = ts
	}

	return state, nil
}

// LoadCooldowns restores the critical-drawdown cooldown map persisted by a
// previous process lifetime. Unparseable entries are skipped, not fatal.
func (c *Client) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	entries, err := c.rdb.HGetAll(ctx, c.cfg.CooldownsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", c.cfg.CooldownsKey, err)
	}

	cooldowns := make(map[string]time.Time, len(entries))
	for symbol, stamp := range entries {
		ts, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"value":  stamp,
			}).WithError(err).Warn("Skipping unparseable cooldown entry")
			continue
		}
		cooldowns[symbol] = ts
	}

	return cooldowns, nil
}

// SaveCooldown persists one cooldown timestamp. Best-effort: callers log and
// move on when it fails, since a duplicate alert beats a lost one.
func (c *Client) SaveCooldown(ctx context.Context, symbol string, at time.Time) error {
	err := c.rdb.HSet(ctx, c.cfg.CooldownsKey, symbol, at.UTC().Format(time.RFC3339)).Err()
	if err != nil {
		return fmt.Errorf("hset %s %s: %w", c.cfg.CooldownsKey, symbol, err)
	}
	return nil
}
