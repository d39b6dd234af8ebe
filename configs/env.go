package configs

import (
	"fmt"

	"github.com/caarlos0/env/v9"
	_ "github.com/joho/godotenv/autoload"
)

// Env holds process-level configuration shared across all pipelines
type Env struct {
	Port string `env:"PORT" envDefault:"8080"`

	// True API endpoint (production contour by default)
	TrueAPIBaseURL string `env:"TRUE_API_BASE_URL" envDefault:"https://markirovka.crpt.ru/api/v3/true-api"`

	// DataDir is the root for all persisted state: token store, certificate
	// registry, regions, and per-certificate output directories
	DataDir string `env:"DATA_DIR" envDefault:"."`

	// CryptCPPath is the external detached-signature tool invoked per thumbprint
	CryptCPPath string `env:"CRYPTCP_PATH" envDefault:"/opt/cprocsp/bin/amd64/cryptcp"`

	// Scheduler trigger times (HH:MM, local time)
	TokenRefreshTime string `env:"TOKEN_REFRESH_TIME" envDefault:"03:00"`
	DailyReportTime  string `env:"DAILY_REPORT_TIME" envDefault:"04:00"`
	EmailTime        string `env:"EMAIL_TIME" envDefault:"20:04"`

	// CheckInterval is the scheduler loop period in seconds
	CheckInterval int `env:"SCHEDULER_CHECK_INTERVAL" envDefault:"60"`
}

// Load parses the environment into an Env
func Load() (*Env, error) {
	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
