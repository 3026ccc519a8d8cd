package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)

	cfg := Config{
		RedisAddr:      srv.Addr(),
		PositionsKey:   "broker:positions",
		StopOrdersKey:  "broker:stop_orders",
		BuyingPowerKey: "broker:buying_power",
		CooldownsKey:   "guardian:drawdown_cooldowns",
	}

	client := &Client{
		cfg: cfg,
		rdb: redis.NewClient(&redis.Options{Addr: srv.Addr()}),
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, srv
}

func TestGetLivePosition(t *testing.T) {
	client, srv := newTestClient(t)

	srv.HSet("broker:positions", "AAPL", `{
		"symbol": "AAPL",
		"quantity": "10",
		"equity": "1411.00",
		"percent_change": "-6.1",
		"equity_change": "-91.50",
		"updated_at": "2025-06-10T14:59:00Z"
	}`)

	live, err := client.GetLivePosition(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, live)

	require.NotNil(t, live.CurrentPrice)
	assert.True(t, live.CurrentPrice.Equal(decimal.RequireFromString("141.10")), "price is equity/quantity, got %s", live.CurrentPrice)
	require.NotNil(t, live.PercentChange)
	assert.True(t, live.PercentChange.Equal(decimal.RequireFromString("-6.1")))
	require.NotNil(t, live.UpdatedAt)
	assert.Equal(t, time.Date(2025, time.June, 10, 14, 59, 0, 0, time.UTC), live.UpdatedAt.UTC())
}

func TestGetLivePosition_MissingSymbol(t *testing.T) {
	client, _ := newTestClient(t)

	live, err := client.GetLivePosition(context.Background(), "GME")
	require.NoError(t, err, "absent data is not an error")
	assert.Nil(t, live)
}

func TestGetLivePosition_BadTimestampStillReturnsPrices(t *testing.T) {
	client, srv := newTestClient(t)

	srv.HSet("broker:positions", "AAPL", `{"quantity":"10","equity":"1000","updated_at":"yesterday-ish"}`)

	live, err := client.GetLivePosition(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.NotNil(t, live.CurrentPrice)
	assert.Nil(t, live.UpdatedAt, "unparseable timestamp is dropped, not fatal")
}

func TestGetExternalStopOrder(t *testing.T) {
	client, srv := newTestClient(t)

	srv.HSet("broker:stop_orders", "AAPL", `{"stop_price":"135.50"}`)

	order, err := client.GetExternalStopOrder(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, order.StopPrice.Equal(decimal.RequireFromString("135.50")))

	missing, err := client.GetExternalStopOrder(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetAccountEquity(t *testing.T) {
	client, srv := newTestClient(t)

	require.NoError(t, srv.Set("broker:buying_power",
		`{"buying_power":"2500.00","cash":"1800.00","total_equity":"10450.75","updated_at":"2025-06-10T15:00:00Z"}`))

	account, err := client.GetAccountEquity(context.Background())
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.TotalEquity.Equal(decimal.RequireFromString("10450.75")))
	assert.True(t, account.BuyingPower.Equal(decimal.RequireFromString("2500.00")))
}

func TestGetAccountEquity_NoData(t *testing.T) {
	client, _ := newTestClient(t)

	account, err := client.GetAccountEquity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestCooldownPersistenceRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)

	t0 := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, client.SaveCooldown(context.Background(), "AAPL", t0))
	require.NoError(t, client.SaveCooldown(context.Background(), "TSLA", t0.Add(5*time.Minute)))

	cooldowns, err := client.LoadCooldowns(context.Background())
	require.NoError(t, err)
	require.Len(t, cooldowns, 2)
	assert.True(t, cooldowns["AAPL"].Equal(t0))
	assert.True(t, cooldowns["TSLA"].Equal(t0.Add(5*time.Minute)))
}

func TestLoadCooldowns_SkipsUnparseableEntries(t *testing.T) {
	client, srv := newTestClient(t)

	srv.HSet("guardian:drawdown_cooldowns", "AAPL", "2025-06-10T12:00:00Z")
	srv.HSet("guardian:drawdown_cooldowns", "TSLA", "not-a-timestamp")

	cooldowns, err := client.LoadCooldowns(context.Background())
	require.NoError(t, err)
	require.Len(t, cooldowns, 1)
	assert.Contains(t, cooldowns, "AAPL")
}
