package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                       string
	DatabaseURL                string
	AlternatePriorityEvery     int
	BusinessTimezone           string
	IssueRetryAttempts         int
	ClaimRetryAttempts         int
	AbsentGrace                time.Duration
	AbsentScanInterval         time.Duration
	AbsentBatchSize            int
	RateLimitPerMinute         int
	RateLimitBurst             int
	OperatorRateLimitPerMinute int
	OperatorRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                       port,
		DatabaseURL:                os.Getenv("DB_DSN"),
		AlternatePriorityEvery:     readInt("ALTERNATE_PRIORITY_EVERY", 3),
		BusinessTimezone:           os.Getenv("BUSINESS_TIMEZONE"),
		IssueRetryAttempts:         readInt("ISSUE_RETRY_ATTEMPTS", 5),
		ClaimRetryAttempts:         readInt("CLAIM_RETRY_ATTEMPTS", 5),
		AbsentGrace:                readDurationSeconds("ABSENT_GRACE_SECONDS", 0),
		AbsentScanInterval:         readDurationSeconds("ABSENT_SCAN_INTERVAL_SECONDS", 30),
		AbsentBatchSize:            readInt("ABSENT_BATCH_SIZE", 100),
		RateLimitPerMinute:         readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:             readInt("RATE_LIMIT_BURST", 30),
		OperatorRateLimitPerMinute: readInt("OPERATOR_RATE_LIMIT_PER_MIN", 600),
		OperatorRateLimitBurst:     readInt("OPERATOR_RATE_LIMIT_BURST", 120),
	}
}

// Location resolves the business timezone used to decide which calendar day
// a ticket number is issued for. Falls back to the host's local zone.
func (c Config) Location() *time.Location {
	if c.BusinessTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
