package shared

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv          string
	HTTPAddr        string
	MetricsAddr     string
	MySQLDSN        string
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	PlayBase        string
	PlayLang        string
	PlayCountry     string
	PlayRPS         int
	Workers         int
	ReviewTarget    int
	MinCount        int
	MaxMissingRatio float64
	CacheTTL        time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return def
	}
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ":9100"),
		MySQLDSN:        env("MYSQL_DSN", "root:root@tcp(localhost:3306)/bank_reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:       env("REDIS_ADDR", "localhost:6379"),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		PlayBase:        env("PLAY_BASE_URL", "http://localhost:3000/api"),
		PlayLang:        env("PLAY_LANG", "en"),
		PlayCountry:     env("PLAY_COUNTRY", "et"),
		PlayRPS:         atoi("PLAY_RPS", 2),
		Workers:         atoi("INGEST_WORKERS", 3),
		ReviewTarget:    atoi("INGEST_REVIEW_TARGET", 600),
		MinCount:        atoi("INGEST_MIN_COUNT", 400),
		MaxMissingRatio: atof("INGEST_MAX_MISSING_RATIO", 0.05),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// BankApp binds a bank to its Play Store listing. App ids come from env so
// deployments can repoint at regional listings without a rebuild.
type BankApp struct {
	Bank        string
	DisplayName string
	AppID       string
}

var bankApps = []struct {
	bank, display, envKey, defaultID string
}{
	{"CBE", "Commercial Bank of Ethiopia", "CBE_APP_ID", "com.combanketh.mobilebanking"},
	{"BOA", "Bank of Abyssinia", "BOA_APP_ID", "com.boa.boaMobileBanking"},
	{"Dashen", "Dashen Bank", "DASHEN_APP_ID", "com.dashen.dashensuperapp"},
}

// BankApps returns the registry of tracked banks.
func BankApps() []BankApp {
	out := make([]BankApp, 0, len(bankApps))
	for _, b := range bankApps {
		out = append(out, BankApp{
			Bank:        b.bank,
			DisplayName: b.display,
			AppID:       env(b.envKey, b.defaultID),
		})
	}
	return out
}
