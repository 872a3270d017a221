package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	routeAuthorize = "/oauth2/authorize"
	routeToken     = "/oauth2/token"
	routeIdentity  = "/users/@me"

	// maxErrorBody bounds how much of a failed response is kept in an error
	maxErrorBody = 512
)

var _ batch.APIClient = (*Client)(nil)

// Client talks to the remote OAuth2/REST provider. Token exchanges go
// through x/oauth2; identity and enrollment are plain REST calls.
type Client struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	apiEndpoint string
	botToken    string
	logger      zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every call (primarily for testing)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func New(cfg config.ProviderConfig, opts ...Option) *Client {
	api := cfg.GetAPIEndpoint()
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			RedirectURL:  cfg.GetRedirectURL(),
			Scopes:       cfg.GetScopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   api + routeAuthorize,
				TokenURL:  api + routeToken,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:  &http.Client{Timeout: cfg.GetRequestTimeout()},
		apiEndpoint: api,
		botToken:    cfg.GetBotToken(),
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthCodeURL is the provider consent page the intake server redirects to
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for a token pair
func (c *Client) ExchangeCode(ctx context.Context, code string) (batch.TokenPair, error) {
	if code == "" {
		return batch.TokenPair{}, errs.ErrMissingCode
	}
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return batch.TokenPair{}, errs.Join(errs.ErrExchangeFailure, fmt.Errorf("[Client ExchangeCode] %w", err))
	}
	return pairFromToken(tok)
}

// ExchangeRefreshToken runs the refresh_token grant
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (batch.TokenPair, error) {
	// A token with no access token is never valid, so the source always refreshes.
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return batch.TokenPair{}, errs.Join(errs.ErrExchangeFailure, fmt.Errorf("[Client ExchangeRefreshToken] %w", err))
	}
	return pairFromToken(tok)
}

type identityResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// LookupIdentity resolves the subject behind an access token
func (c *Client) LookupIdentity(ctx context.Context, accessToken string) (batch.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiEndpoint+routeIdentity, nil)
	if err != nil {
		return batch.Identity{}, errs.Join(errs.ErrIdentityLookupFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return batch.Identity{}, errs.Join(errs.ErrIdentityLookupFailure, fmt.Errorf("[Client LookupIdentity] %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return batch.Identity{}, errs.Join(errs.ErrIdentityLookupFailure, statusError("[Client LookupIdentity]", resp))
	}

	var body identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return batch.Identity{}, errs.Join(errs.ErrIdentityLookupFailure, fmt.Errorf("[Client LookupIdentity] decode: %w", err))
	}
	if body.ID == "" {
		return batch.Identity{}, fmt.Errorf("%w: response carried no id", errs.ErrIdentityLookupFailure)
	}

	return batch.Identity{ID: body.ID, DisplayName: body.Username}, nil
}

type enrollRequest struct {
	AccessToken string `json:"access_token"`
}

// EnrollSubject adds the subject to the group using the bot credential.
// 201 (added) and 204 (already a member) both count as success.
func (c *Client) EnrollSubject(ctx context.Context, groupID, subjectID, accessToken string) (bool, error) {
	payload, err := json.Marshal(enrollRequest{AccessToken: accessToken})
	if err != nil {
		return false, errs.Join(errs.ErrEnrollmentFailure, err)
	}

	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s", c.apiEndpoint, url.PathEscape(groupID), url.PathEscape(subjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, errs.Join(errs.ErrEnrollmentFailure, err)
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errs.Join(errs.ErrEnrollmentFailure, fmt.Errorf("[Client EnrollSubject] %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return true, nil
	default:
		c.logger.Debug().Int("status", resp.StatusCode).Str("subject_id", subjectID).Msg("enrollment rejected")
		return false, errs.Join(errs.ErrEnrollmentFailure, statusError("[Client EnrollSubject]", resp))
	}
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func pairFromToken(tok *oauth2.Token) (batch.TokenPair, error) {
	if tok == nil || tok.AccessToken == "" {
		return batch.TokenPair{}, fmt.Errorf("%w: response carried no access token", errs.ErrExchangeFailure)
	}
	return batch.TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

func statusError(tag string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s unexpected status %d: %s", tag, resp.StatusCode, bytes.TrimSpace(body))
}
