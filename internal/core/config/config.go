// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
)

type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration

	// WarmTop hot queries are re-fetched after a refresh; 0 disables warming.
	WarmTop     int
	HotHalfLife time.Duration
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	Profile        string
	CartoUser      string
	CartoBaseURL   string
	CartoTable     string
	ReferenceLayer string
	HTTPTimeout    time.Duration
	H3Res          int
	MetricsEnabled bool
	AllowedOrigins []string
	CutoffRange    model.DateRange
	Cache          CacheCfg
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		Profile:        getenv("PROFILE", palette.DefaultProfile),
		CartoUser:      getenv("CARTO_USER", "data-inno"),
		CartoBaseURL:   getenv("CARTO_BASE_URL", ""),
		CartoTable:     getenv("CARTO_TABLE", cartosql.DefaultTable),
		ReferenceLayer: getenv("REFERENCE_LAYER", "settlement-label"),
		HTTPTimeout:    getduration("HTTP_TIMEOUT", 30*time.Second),
		H3Res:          getint("H3_RES", 5),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		AllowedOrigins: getlist("ALLOWED_ORIGINS"),
		CutoffRange: model.DateRange{
			Min: getdate("CUTOFF_MIN", model.NewDate(2019, time.June, 1)),
			Max: getdate("CUTOFF_MAX", model.NewDate(2019, time.October, 31)),
		},
		Cache: CacheCfg{
			Enabled:     getbool("CACHE_ENABLED", false),
			RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
			TTL:         getduration("CACHE_TTL", 24*time.Hour),
			LRUSize:     getint("CACHE_LRU_SIZE", 64),
			OpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			WarmTop:     getint("CACHE_WARM_TOP", 4),
			HotHalfLife: getduration("CACHE_HOT_HALF_LIFE", 10*time.Minute),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "dataset-refresh"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "freezemap-cache"),
		},
	}
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if _, err := palette.LookupProfile(c.Profile); err != nil {
		errs = append(errs, err)
	}
	if !cartosql.ValidTable(c.CartoTable) {
		errs = append(errs, fmt.Errorf("CARTO_TABLE %q is not a valid identifier", c.CartoTable))
	}
	if c.CartoUser == "" && c.CartoBaseURL == "" {
		errs = append(errs, errors.New("one of CARTO_USER or CARTO_BASE_URL is required"))
	}
	if c.CutoffRange.Max.Before(c.CutoffRange.Min) {
		errs = append(errs, fmt.Errorf("CUTOFF_MAX %s is before CUTOFF_MIN %s", c.CutoffRange.Max, c.CutoffRange.Min))
	}
	if c.H3Res < 0 || c.H3Res > 15 {
		errs = append(errs, fmt.Errorf("H3_RES %d must be 0..15", c.H3Res))
	}
	if c.Invalidation.Enabled && !c.Cache.Enabled {
		errs = append(errs, errors.New("INVALIDATION_ENABLED requires CACHE_ENABLED"))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getdate(k string, def model.Date) model.Date {
	if v := os.Getenv(k); v != "" {
		if d, err := model.ParseDate(v); err == nil {
			return d
		}
	}
	return def
}

func getlist(k string) []string {
	var out []string
	for p := range strings.SplitSeq(os.Getenv(k), ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
