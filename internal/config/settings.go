package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings is the daemon configuration read from COMFORT_* variables.
type Settings struct {
	Home            string        `env:"COMFORT_HOME"`
	HTTPAddr        string        `env:"COMFORT_HTTP_ADDR" envDefault:"127.0.0.1:7420"`
	GRPCAddr        string        `env:"COMFORT_GRPC_ADDR" envDefault:"127.0.0.1:7421"`
	RevealDelay     time.Duration `env:"COMFORT_REVEAL_DELAY" envDefault:"2s"`
	HideDelay       time.Duration `env:"COMFORT_HIDE_DELAY" envDefault:"3s"`
	TriggerFraction float64       `env:"COMFORT_TRIGGER_FRACTION" envDefault:"0.2"`
	Locale          string        `env:"COMFORT_LOCALE" envDefault:"en"`
	AllowedOrigins  []string      `env:"COMFORT_ALLOWED_ORIGINS" envSeparator:","`
	AdaptersDir     string        `env:"COMFORT_ADAPTERS_DIR"`
	JournalPath     string        `env:"COMFORT_JOURNAL_PATH"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadSettings parses the environment, fills path defaults under the home
// directory and validates the result.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := ParseEnv(&s); err != nil {
		return Settings{}, err
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.Home == "" {
		s.Home = GetHome()
	}
	s.Home = ExpandPath(s.Home)
	paths := PathsAt(s.Home)
	if s.AdaptersDir == "" {
		s.AdaptersDir = paths.Adapters
	}
	if s.JournalPath == "" {
		s.JournalPath = paths.Journal
	}
	s.AdaptersDir = ExpandPath(s.AdaptersDir)
	s.JournalPath = ExpandPath(s.JournalPath)

	origins := s.AllowedOrigins[:0]
	for _, o := range s.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	s.AllowedOrigins = origins
}

// Paths returns the directory layout under the configured home.
func (s Settings) Paths() Paths {
	return PathsAt(s.Home)
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.RevealDelay <= 0 {
		errs = append(errs, fmt.Errorf("COMFORT_REVEAL_DELAY must be positive, got %s", s.RevealDelay))
	}
	if s.HideDelay <= 0 {
		errs = append(errs, fmt.Errorf("COMFORT_HIDE_DELAY must be positive, got %s", s.HideDelay))
	}
	if s.TriggerFraction <= 0 || s.TriggerFraction >= 1 {
		errs = append(errs, fmt.Errorf("COMFORT_TRIGGER_FRACTION must be in (0,1), got %g", s.TriggerFraction))
	}
	if strings.TrimSpace(s.HTTPAddr) == "" {
		errs = append(errs, errors.New("COMFORT_HTTP_ADDR is required"))
	}
	if strings.TrimSpace(s.GRPCAddr) == "" {
		errs = append(errs, errors.New("COMFORT_GRPC_ADDR is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
