package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the engine daemon configuration, loaded from
// ~/.psycle/config.toml.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	API       APIConfig       `toml:"api"`
	Boost     BoostConfig     `toml:"boost"`
	Freeze    FreezeConfig    `toml:"freeze"`
	League    LeagueConfig    `toml:"league"`
	Ranking   RankingConfig   `toml:"ranking"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

type EngineConfig struct {
	UserID  string `toml:"user_id"`
	DataDir string `toml:"data_dir"`
}

type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type BoostConfig struct {
	DurationMinutes int `toml:"duration_minutes"`
	Multiplier      int `toml:"multiplier"`
	MaxBonusXP      int `toml:"max_bonus_xp"`
}

type FreezeConfig struct {
	WeeklyRefill int `toml:"weekly_refill"`
	MaxCap       int `toml:"max_cap"`
}

type LeagueConfig struct {
	Size                  int     `toml:"size"`
	GapWeight             float64 `toml:"gap_weight"`
	VarianceWeight        float64 `toml:"variance_weight"`
	MinMembersForVariance int     `toml:"min_members_for_variance"`
}

type RankingConfig struct {
	// Driver selects the ranking authority: "sqlite" keeps leagues in the
	// local state database, "postgres" uses a shared server.
	Driver      string `toml:"driver"`
	PostgresURL string `toml:"postgres_url"`
}

type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			UserID:  "local",
			DataDir: filepath.Join(psycleHome(), "data"),
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7432,
		},
		Boost: BoostConfig{
			DurationMinutes: 15,
			Multiplier:      2,
			MaxBonusXP:      120,
		},
		Freeze: FreezeConfig{
			WeeklyRefill: 2,
			MaxCap:       5,
		},
		League: LeagueConfig{
			Size:                  30,
			GapWeight:             1.0,
			VarianceWeight:        0.35,
			MinMembersForVariance: 3,
		},
		Ranking: RankingConfig{
			Driver: "sqlite",
		},
		Telemetry: TelemetryConfig{
			Prometheus: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the config file, applying it over the defaults. A missing
// file is not an error.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config file, creating the home directory if needed.
func SaveConfig(cfg Config) error {
	if err := os.MkdirAll(psycleHome(), 0o755); err != nil {
		return err
	}
	f, err := os.Create(configPath())
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func configPath() string {
	return filepath.Join(psycleHome(), "config.toml")
}

// psycleHome is ~/.psycle, overridable via PSYCLE_HOME for tests and
// multi-instance setups.
func psycleHome() string {
	if dir := os.Getenv("PSYCLE_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".psycle"
	}
	return filepath.Join(home, ".psycle")
}

// Home returns the engine's state directory.
func Home() string { return psycleHome() }
