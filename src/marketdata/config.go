package marketdata

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	// Keys written by the broker sync service.
	PositionsKey   string `envconfig:"REDIS_POSITIONS_KEY" default:"broker:positions"`
	StopOrdersKey  string `envconfig:"REDIS_STOP_ORDERS_KEY" default:"broker:stop_orders"`
	BuyingPowerKey string `envconfig:"REDIS_BUYING_POWER_KEY" default:"broker:buying_power"`

	// Key owned by the guardian itself.
	CooldownsKey string `envconfig:"REDIS_COOLDOWNS_KEY" default:"guardian:drawdown_cooldowns"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
