package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ClampPolicy decides how reporting-scale scores are bounded.
type ClampPolicy string

const (
	ClampNone  ClampPolicy = "none"
	ClampFloor ClampPolicy = "floor" // score >= 0
	ClampRange ClampPolicy = "range" // 0 <= score <= 1000
)

type TRIConfig struct {
	ThetaMin      float64     `yaml:"theta_min"`
	ThetaMax      float64     `yaml:"theta_max"`
	Constant      float64     `yaml:"constant"`
	MaxIterations int         `yaml:"max_iterations"`
	Tolerance     float64     `yaml:"tolerance"`
	ScoreBase     float64     `yaml:"score_base"`
	ScoreScale    float64     `yaml:"score_scale"`
	ScoreClamp    ClampPolicy `yaml:"score_clamp"`
	Workers       int         `yaml:"workers"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// URL is the form golang-migrate's postgres driver expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Config struct {
	Port     string         `yaml:"port"`
	LogMode  string         `yaml:"log_mode"`
	Database DatabaseConfig `yaml:"database"`
	TRI      TRIConfig      `yaml:"tri"`
}

func Default() Config {
	return Config{
		Port:    "8080",
		LogMode: "dev",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "tri_user",
			Password: "tri_password",
			Name:     "tri",
			SSLMode:  "disable",
		},
		TRI: DefaultTRI(),
	}
}

func DefaultTRI() TRIConfig {
	return TRIConfig{
		ThetaMin:      -4,
		ThetaMax:      4,
		Constant:      1.7,
		MaxIterations: 1000,
		Tolerance:     1e-6,
		ScoreBase:     500,
		ScoreScale:    100,
		ScoreClamp:    ClampRange,
		Workers:       runtime.NumCPU(),
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// TRI_CONFIG_FILE (if any), then individual environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("TRI_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogMode = getEnv("LOG_MODE", cfg.LogMode)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	var err error
	if cfg.TRI.ThetaMin, err = getEnvFloat("TRI_THETA_MIN", cfg.TRI.ThetaMin); err != nil {
		return cfg, err
	}
	if cfg.TRI.ThetaMax, err = getEnvFloat("TRI_THETA_MAX", cfg.TRI.ThetaMax); err != nil {
		return cfg, err
	}
	if cfg.TRI.Constant, err = getEnvFloat("TRI_CONSTANT", cfg.TRI.Constant); err != nil {
		return cfg, err
	}
	if cfg.TRI.Tolerance, err = getEnvFloat("TRI_TOLERANCE", cfg.TRI.Tolerance); err != nil {
		return cfg, err
	}
	if cfg.TRI.ScoreBase, err = getEnvFloat("TRI_SCORE_BASE", cfg.TRI.ScoreBase); err != nil {
		return cfg, err
	}
	if cfg.TRI.ScoreScale, err = getEnvFloat("TRI_SCORE_SCALE", cfg.TRI.ScoreScale); err != nil {
		return cfg, err
	}
	if cfg.TRI.MaxIterations, err = getEnvInt("TRI_MAX_ITERATIONS", cfg.TRI.MaxIterations); err != nil {
		return cfg, err
	}
	if cfg.TRI.Workers, err = getEnvInt("TRI_WORKERS", cfg.TRI.Workers); err != nil {
		return cfg, err
	}
	cfg.TRI.ScoreClamp = ClampPolicy(getEnv("TRI_SCORE_CLAMP", string(cfg.TRI.ScoreClamp)))

	if err := cfg.TRI.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c TRIConfig) Validate() error {
	if c.ThetaMin >= c.ThetaMax {
		return fmt.Errorf("invalid theta bounds [%g, %g]", c.ThetaMin, c.ThetaMax)
	}
	if c.Constant <= 0 {
		return fmt.Errorf("logistic constant must be positive, got %g", c.Constant)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	switch c.ScoreClamp {
	case ClampNone, ClampFloor, ClampRange:
	default:
		return fmt.Errorf("unknown score clamp policy %q", c.ScoreClamp)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
