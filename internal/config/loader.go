package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// MinSessionSecretLength is the shortest session secret, in bytes, that can
// sign tokens.
const MinSessionSecretLength = 16

// Config holds the settings of the autoescola server and CLI.
type Config struct {
	HTTPPort       int
	SQLiteDSN      string
	SessionSecret  string
	SessionTTL     time.Duration
	SignInTimeout  time.Duration
	ProfileTimeout time.Duration
	SweepSchedule  string
	Timezone       string
	Location       *time.Location
	LogLevel       zerolog.Level
	// RateLimit caps sign-in, sign-up and booking creation per client IP per minute.
	RateLimit int
}

// fileConfig is the YAML layout of the optional config file.
type fileConfig struct {
	HTTPPort       *int    `yaml:"http_port"`
	SQLiteDSN      *string `yaml:"sqlite_dsn"`
	SessionSecret  *string `yaml:"session_secret"`
	SessionTTL     *string `yaml:"session_ttl"`
	SignInTimeout  *string `yaml:"sign_in_timeout"`
	ProfileTimeout *string `yaml:"profile_timeout"`
	SweepSchedule  *string `yaml:"sweep_schedule"`
	Timezone       *string `yaml:"timezone"`
	LogLevel       *string `yaml:"log_level"`
	RateLimit      *int    `yaml:"rate_limit"`
}

const (
	envPrefix     = "AUTOESCOLA_"
	envConfigFile = envPrefix + "CONFIG"
	envDotEnvFile = envPrefix + "ENV_FILE"
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPPort:       8080,
		SQLiteDSN:      "autoescola.db",
		SessionTTL:     24 * time.Hour,
		SignInTimeout:  10 * time.Second,
		ProfileTimeout: 2 * time.Second,
		SweepSchedule:  "@every 15m",
		Timezone:       "America/Sao_Paulo",
		LogLevel:       zerolog.InfoLevel,
		RateLimit:      30,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// AUTOESCOLA_CONFIG, a .env file and finally AUTOESCOLA_* environment
// variables. Later sources win. Missing and invalid settings are reported
// together.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv(envDotEnvFile))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	cfg := Defaults()
	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		fileInvalid, err := applyFile(&cfg, path)
		if err != nil {
			return Config{}, err
		}
		invalid = append(invalid, fileInvalid...)
	}

	invalid = append(invalid, applyEnv(&cfg)...)

	missing := make([]string, 0, 1)
	switch {
	case strings.TrimSpace(cfg.SessionSecret) == "":
		missing = append(missing, envPrefix+"SESSION_SECRET")
	case len(cfg.SessionSecret) < MinSessionSecretLength:
		invalid = append(invalid, envPrefix+"SESSION_SECRET")
	}
	if loc, err := time.LoadLocation(cfg.Timezone); err != nil {
		invalid = append(invalid, envPrefix+"TIMEZONE")
	} else {
		cfg.Location = loc
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid settings: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var invalid []string
	if fc.HTTPPort != nil {
		if *fc.HTTPPort <= 0 {
			invalid = append(invalid, "http_port")
		} else {
			cfg.HTTPPort = *fc.HTTPPort
		}
	}
	if fc.SQLiteDSN != nil && strings.TrimSpace(*fc.SQLiteDSN) != "" {
		cfg.SQLiteDSN = strings.TrimSpace(*fc.SQLiteDSN)
	}
	if fc.SessionSecret != nil {
		cfg.SessionSecret = strings.TrimSpace(*fc.SessionSecret)
	}
	durations := []struct {
		key   string
		value *string
		dst   *time.Duration
	}{
		{"session_ttl", fc.SessionTTL, &cfg.SessionTTL},
		{"sign_in_timeout", fc.SignInTimeout, &cfg.SignInTimeout},
		{"profile_timeout", fc.ProfileTimeout, &cfg.ProfileTimeout},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		if !setDuration(d.dst, *d.value) {
			invalid = append(invalid, d.key)
		}
	}
	if fc.SweepSchedule != nil && strings.TrimSpace(*fc.SweepSchedule) != "" {
		cfg.SweepSchedule = strings.TrimSpace(*fc.SweepSchedule)
	}
	if fc.Timezone != nil && strings.TrimSpace(*fc.Timezone) != "" {
		cfg.Timezone = strings.TrimSpace(*fc.Timezone)
	}
	if fc.LogLevel != nil && !setLevel(&cfg.LogLevel, *fc.LogLevel) {
		invalid = append(invalid, "log_level")
	}
	if fc.RateLimit != nil {
		if *fc.RateLimit < 0 {
			invalid = append(invalid, "rate_limit")
		} else {
			cfg.RateLimit = *fc.RateLimit
		}
	}
	return invalid, nil
}

func applyEnv(cfg *Config) []string {
	var invalid []string
	lookup := func(name string) (string, bool) {
		v := strings.TrimSpace(os.Getenv(envPrefix + name))
		return v, v != ""
	}

	if v, ok := lookup("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			invalid = append(invalid, envPrefix+"HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	if v, ok := lookup("SQLITE_DSN"); ok {
		cfg.SQLiteDSN = v
	}
	if v, ok := lookup("SESSION_SECRET"); ok {
		cfg.SessionSecret = v
	}
	for name, dst := range map[string]*time.Duration{
		"SESSION_TTL":     &cfg.SessionTTL,
		"SIGN_IN_TIMEOUT": &cfg.SignInTimeout,
		"PROFILE_TIMEOUT": &cfg.ProfileTimeout,
	} {
		if v, ok := lookup(name); ok && !setDuration(dst, v) {
			invalid = append(invalid, envPrefix+name)
		}
	}
	if v, ok := lookup("SWEEP_SCHEDULE"); ok {
		cfg.SweepSchedule = v
	}
	if v, ok := lookup("TIMEZONE"); ok {
		cfg.Timezone = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && !setLevel(&cfg.LogLevel, v) {
		invalid = append(invalid, envPrefix+"LOG_LEVEL")
	}
	if v, ok := lookup("RATE_LIMIT"); ok {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			invalid = append(invalid, envPrefix+"RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}
	sort.Strings(invalid)
	return invalid
}

func setDuration(dst *time.Duration, value string) bool {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return false
	}
	*dst = d
	return true
}

func setLevel(dst *zerolog.Level, value string) bool {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || level == zerolog.NoLevel {
		return false
	}
	*dst = level
	return true
}
