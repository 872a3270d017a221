package config

import (
	"strings"
	"time"
)

type ProviderConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURL() string
	GetAPIEndpoint() string
	GetBotToken() string
	GetScopes() []string
	GetRequestTimeout() time.Duration
}

type Provider struct {
	ClientID       string        `env:"CLIENT_ID"`
	ClientSecret   string        `env:"CLIENT_SECRET"`
	RedirectURL    string        `env:"REDIRECT_URL"`
	APIEndpoint    string        `env:"API_ENDPOINT" envDefault:"https://discord.com/api/v10"`
	BotToken       string        `env:"BOT_TOKEN"`
	Scopes         []string      `env:"SCOPES" envSeparator:" " envDefault:"identify guilds.join"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

var _ ProviderConfig = Provider{}

func (p Provider) GetClientID() string {
	return p.ClientID
}

func (p Provider) GetClientSecret() string {
	return p.ClientSecret
}

func (p Provider) GetRedirectURL() string {
	return p.RedirectURL
}

func (p Provider) GetAPIEndpoint() string {
	return strings.TrimSuffix(p.APIEndpoint, "/")
}

func (p Provider) GetBotToken() string {
	return p.BotToken
}

func (p Provider) GetScopes() []string {
	if len(p.Scopes) == 0 {
		return []string{"identify", "guilds.join"}
	}
	return p.Scopes
}

func (p Provider) GetRequestTimeout() time.Duration {
	if p.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return p.RequestTimeout
}
