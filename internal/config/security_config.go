package config

import "time"

type SecurityConfig interface {
	GetAdminToken() string
	GetStateSecret() []byte
	GetRequireState() bool
	GetStateTTL() time.Duration
	GetWebhookURLs() []string
}

type Security struct {
	AdminToken   string        `env:"ADMIN_TOKEN"`
	StateSecret  string        `env:"STATE_SECRET"`
	RequireState bool          `env:"REQUIRE_STATE" envDefault:"true"`
	StateTTL     time.Duration `env:"STATE_TTL" envDefault:"10m"`
	WebhookURLs  []string      `env:"LOG_WEBHOOKS" envSeparator:","`
}

var _ SecurityConfig = Security{}

// GetAdminToken returns the bearer token guarding the admin batch endpoints.
// An empty token disables those endpoints.
func (s Security) GetAdminToken() string {
	return s.AdminToken
}

func (s Security) GetStateSecret() []byte {
	return []byte(s.StateSecret)
}

func (s Security) GetRequireState() bool {
	return s.RequireState
}

func (s Security) GetStateTTL() time.Duration {
	if s.StateTTL <= 0 {
		return 10 * time.Minute
	}
	return s.StateTTL
}

func (s Security) GetWebhookURLs() []string {
	return s.WebhookURLs
}
