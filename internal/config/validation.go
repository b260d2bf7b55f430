package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// validSSLModes are the SSL modes accepted by the pgx driver.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the full configuration. Returns the first problem found,
// wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	return c.validatePostgres()
}

// ValidateServe additionally requires the AI gateway credentials, which the
// chat pipeline cannot run without. Offline commands (migrate) skip this.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.AIBaseURL) == "" {
		return fmt.Errorf("%w: set NEBULA_AI_BASE_URL or ai_base_url", ErrMissingAIBaseURL)
	}
	if strings.TrimSpace(c.AIAPIKey) == "" {
		return fmt.Errorf("%w: set NEBULA_AI_API_KEY or ai_api_key", ErrMissingAPIKey)
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddr)
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("%w: %q (%v)", ErrInvalidAddr, c.Addr, err)
	}
	return nil
}

func (c *Config) validateAI() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if c.MaxTokens <= 0 || c.MaxTokens > MaxAllowedTokens {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidMaxTokens, c.MaxTokens, MaxAllowedTokens)
	}
	if c.AIBaseURL != "" {
		if _, err := url.ParseRequestURI(c.AIBaseURL); err != nil {
			return fmt.Errorf("%w: %q (%v)", ErrInvalidAIBaseURL, c.AIBaseURL, err)
		}
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if c.RegistryURL == "" {
		return nil // registry is optional; builtins still work
	}
	u, err := url.Parse(c.RegistryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidRegistryURL, c.RegistryURL)
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}
