package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine holds all configuration for the territory engine daemon.
type Engine struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Claim rules
	Claims ClaimsConfig `yaml:"claims"`

	// Economy cycle
	Economy EconomyConfig `yaml:"economy"`

	// Permission cache
	PermissionCache PermissionCacheConfig `yaml:"permission_cache"`

	// Territory lazy-load cache
	TerritoryCache TerritoryCacheConfig `yaml:"territory_cache"`

	// Upgrade tiers, indexed by territory upgrade level (level 0 first).
	UpgradeTiers []UpgradeTier `yaml:"upgrade_tiers"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// FlushInterval is the period between full world saves.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClaimsConfig holds spatial claim rules.
type ClaimsConfig struct {
	// BufferZoneChunks is the radius (in chunks, Chebyshev distance) around a
	// foreign territory's claims within which a chunk-less territory may not
	// place its first claim.
	BufferZoneChunks int32 `yaml:"buffer_zone_chunks"`
}

// EconomyConfig holds the scheduled economy cycle tunables.
type EconomyConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`    // default: 24h
	PerChunkUpkeep  float64       `yaml:"per_chunk_upkeep"` // cost per claimed chunk per cycle
	ReleaseChance   float64       `yaml:"release_chance"`   // probability a border chunk is unclaimed on shortfall
	MinimumReleased int           `yaml:"minimum_released"` // floor on chunks released per shortfall
	Workers         int           `yaml:"workers"`          // concurrent territories per cycle
}

// PermissionCacheConfig holds the hot-path authorization cache tunables.
type PermissionCacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`            // entry lifetime (default: 1200ms)
	SoftCap       int           `yaml:"soft_cap"`       // sweep threshold
	SweepInterval time.Duration `yaml:"sweep_interval"` // background expiry sweep period
}

// TerritoryCacheConfig holds the lazy-load cache tunables.
type TerritoryCacheConfig struct {
	MaxSize       int           `yaml:"max_size"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// UpgradeTier describes claim rules unlocked at a territory upgrade level.
type UpgradeTier struct {
	Level         int      `yaml:"level"`
	MaxChunks     int      `yaml:"max_chunks"` // -1 = unlimited
	ClaimCost     float64  `yaml:"claim_cost"`
	AllowedBiomes []string `yaml:"allowed_biomes"` // empty = all biomes allowed
}

// Allows reports whether the tier permits claiming in the given biome.
func (t UpgradeTier) Allows(biome string) bool {
	if len(t.AllowedBiomes) == 0 {
		return true
	}
	for _, b := range t.AllowedBiomes {
		if b == biome {
			return true
		}
	}
	return false
}

// Unlimited reports whether the tier has no chunk cap.
func (t UpgradeTier) Unlimited() bool {
	return t.MaxChunks < 0
}

// Default returns an Engine config with sensible defaults.
func Default() Engine {
	return Engine{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "dominion",
			Password: "dominion",
			DBName:   "dominion",
			SSLMode:  "disable",

			FlushInterval: 5 * time.Minute,
		},
		Claims: ClaimsConfig{
			BufferZoneChunks: 3,
		},
		Economy: EconomyConfig{
			TickInterval:    24 * time.Hour,
			PerChunkUpkeep:  2.0,
			ReleaseChance:   0.25,
			MinimumReleased: 3,
			Workers:         4,
		},
		PermissionCache: PermissionCacheConfig{
			TTL:           1200 * time.Millisecond,
			SoftCap:       10_000,
			SweepInterval: 30 * time.Second,
		},
		TerritoryCache: TerritoryCacheConfig{
			MaxSize:       512,
			IdleTimeout:   10 * time.Minute,
			SweepInterval: time.Minute,
		},
		UpgradeTiers: []UpgradeTier{
			{Level: 0, MaxChunks: 16, ClaimCost: 5},
			{Level: 1, MaxChunks: 36, ClaimCost: 5},
			{Level: 2, MaxChunks: 64, ClaimCost: 4},
			{Level: 3, MaxChunks: 128, ClaimCost: 4},
			{Level: 4, MaxChunks: -1, ClaimCost: 3},
		},
	}
}

// Load reads an Engine config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Engine, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Tier returns the upgrade tier for the given level, clamping to the
// nearest defined tier.
func (e Engine) Tier(level int) UpgradeTier {
	if len(e.UpgradeTiers) == 0 {
		return UpgradeTier{MaxChunks: -1}
	}
	if level < 0 {
		level = 0
	}
	if level >= len(e.UpgradeTiers) {
		level = len(e.UpgradeTiers) - 1
	}
	return e.UpgradeTiers[level]
}
