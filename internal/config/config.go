package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr string
	DBDSN    string

	JWTIssuer string
	JWTSecret string
	JWTTTL    time.Duration

	WebSocketOrigin string
	RedisAddr       string
	CronSecret      string

	StartingCashUSDT decimal.Decimal
	TransferMinUSDT  decimal.Decimal
	PriceMaxDriftPct decimal.Decimal

	FuturesLiquidationFeeRate decimal.Decimal
	FuturesHarshLiquidation   bool
}

func Load() (Config, error) {
	var c Config
	var missing []string

	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, errors.New("invalid JWT_TTL: " + err.Error())
		}
		c.JWTTTL = d
	}
	c.CronSecret = os.Getenv("CRON_SECRET")
	if c.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}

	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	c.RedisAddr = os.Getenv("REDIS_ADDR")

	var err error
	if c.StartingCashUSDT, err = decimalEnv("STARTING_CASH_USDT", "10000"); err != nil {
		return c, err
	}
	if c.TransferMinUSDT, err = decimalEnv("TRANSFER_MIN_USDT", "0.01"); err != nil {
		return c, err
	}
	if c.PriceMaxDriftPct, err = decimalEnv("PRICE_MAX_DRIFT_PCT", "0.5"); err != nil {
		return c, err
	}
	if c.FuturesLiquidationFeeRate, err = decimalEnv("FUTURES_LIQUIDATION_FEE_RATE", "0.0004"); err != nil {
		return c, err
	}

	harsh := os.Getenv("FUTURES_HARSH_LIQUIDATION")
	if harsh != "" {
		b, err := strconv.ParseBool(harsh)
		if err != nil {
			return c, errors.New("invalid FUTURES_HARSH_LIQUIDATION")
		}
		c.FuturesHarshLiquidation = b
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func decimalEnv(name, fallback string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.New("invalid " + name)
	}
	return d, nil
}
