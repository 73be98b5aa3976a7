package session

import (
	"fmt"
	"time"
)

const minSecretLength = 32

type Config struct {
	CookieName  string        `mapstructure:"cookie_name"`
	Secret      string        `mapstructure:"secret"`
	TTL         time.Duration `mapstructure:"ttl"`
	Secure      bool          `mapstructure:"secure"`
	Domain      string        `mapstructure:"domain"`
	MaxSessions int           `mapstructure:"max_sessions"`
}

func (c *Config) Validate() error {
	if c.CookieName == "" {
		return fmt.Errorf("session `cookie_name` is required")
	}
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("session `secret` must be at least %d characters", minSecretLength)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("session `ttl` must be greater than 0")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("session `max_sessions` cannot be negative")
	}
	return nil
}
