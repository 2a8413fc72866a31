package ops

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
)

// ApplyEnv loads .env when present and overrides cfg from the environment.
// Unparseable values are logged and ignored.
func ApplyEnv(cfg *FileConfig) {
	_ = godotenv.Load()

	envFloat("CONFIDENCE_THRESHOLD", &cfg.Risk.ConfidenceThreshold)
	envFloat("MAX_DAILY_LOSS", &cfg.Risk.MaxDailyLoss)
	envFloat("RISK_PERCENT", &cfg.Sizing.RiskPercent)
	envFloat("MIN_LOT_SIZE", &cfg.Sizing.MinLot)
	envFloat("MAX_LOT_SIZE", &cfg.Sizing.MaxLot)
	envFloat("ATR_SL_MULTIPLIER", &cfg.Sizing.SLMultiplier)
	envFloat("HEARTBEAT_INTERVAL_SECONDS", &cfg.Channel.HeartbeatIntervalSeconds)
	envInt("MAGIC_NUMBER", &cfg.Order.Magic)
	envString("TRADING_SYMBOL", &cfg.Symbol)
	envString("DATABASE_URL", &cfg.Storage.DatabaseURL)
	envString("REDIS_URL", &cfg.Storage.RedisURL)
	envString("BRIDGE_URL", &cfg.Broker.URL)
	envString("SIGNAL_SOCKET", &cfg.Channel.Path)
	envString("SIGNAL_URL", &cfg.Channel.URL)
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envFloat(key string, dst *float64) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		logs.Warnf("ignore env %s=%q: %+v", key, val, err)
		return
	}
	*dst = f
}

func envInt(key string, dst *int) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		logs.Warnf("ignore env %s=%q: %+v", key, val, err)
		return
	}
	*dst = n
}
