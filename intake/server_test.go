package intake_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/jrsteele09/go-credential-pool/credentials"
	credentialrepofake "github.com/jrsteele09/go-credential-pool/credentials/repofake"
	"github.com/jrsteele09/go-credential-pool/intake"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testAdminToken  = "admin-token"
	testStateSecret = "state-secret"
	testGroup       = "g1"
)

// fakeProvider implements intake.CodeExchanger and batch.APIClient
type fakeProvider struct {
	failExchange bool
	failLookup   bool
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (batch.TokenPair, error) {
	if p.failExchange {
		return batch.TokenPair{}, errs.ErrExchangeFailure
	}
	return batch.TokenPair{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (p *fakeProvider) ExchangeRefreshToken(_ context.Context, rt string) (batch.TokenPair, error) {
	return batch.TokenPair{AccessToken: "fresh-" + rt, RefreshToken: rt + "-next"}, nil
}

func (p *fakeProvider) LookupIdentity(_ context.Context, accessToken string) (batch.Identity, error) {
	if p.failLookup {
		return batch.Identity{}, errs.ErrIdentityLookupFailure
	}
	return batch.Identity{ID: "id-" + strings.TrimPrefix(accessToken, "access-"), DisplayName: "alice"}, nil
}

func (p *fakeProvider) EnrollSubject(context.Context, string, string, string) (bool, error) {
	return true, nil
}

type notes struct {
	mu       sync.Mutex
	messages []string
}

func (n *notes) Notify(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *notes) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type testFixture struct {
	cfg      config.Settings
	store    *credentialrepofake.FakeStore
	provider *fakeProvider
	notes    *notes
	gate     *batch.Gate
	server   *intake.Server
}

func setupTestFixture(t *testing.T, mutate ...func(*config.Settings)) *testFixture {
	t.Helper()
	cfg := config.Settings{
		EnvVars:  config.EnvVars{AppName: "Credential Pool", Env: "TEST"},
		Batch:    config.Batch{DefaultGroupID: testGroup},
		Security: config.Security{AdminToken: testAdminToken, StateSecret: testStateSecret, StateTTL: time.Minute},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	f := &testFixture{
		cfg:      cfg,
		store:    credentialrepofake.NewFakeStore(),
		provider: &fakeProvider{},
		notes:    &notes{},
		gate:     batch.NewGate(),
	}
	logger := zerolog.Nop()
	opts := []batch.Option{batch.WithLogger(logger), batch.WithYield(0)}
	server, err := intake.New(cfg, intake.Deps{
		Store:     f.store,
		Provider:  f.provider,
		Notifier:  f.notes,
		Refresher: batch.NewRefresher(f.store, f.provider, opts...),
		Enroller:  batch.NewEnroller(f.store, f.provider, opts...),
		Gate:      f.gate,
		Logger:    &logger,
	})
	require.NoError(t, err)
	f.server = server
	return f
}

func (f *testFixture) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := intake.New(config.Settings{}, intake.Deps{Provider: &fakeProvider{}})
	require.Error(t, err)
	_, err = intake.New(config.Settings{}, intake.Deps{Store: credentialrepofake.NewFakeStore()})
	require.Error(t, err)
}

func TestIndex(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Credential Pool online")
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))

	rec = f.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorizeThenDone(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, intake.RouteAuthorize, "")
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	rec = f.do(t, http.MethodGet, intake.RouteDone+"?code=abc&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "Authentication Successful")

	require.Equal(t, []credentials.Record{{SubjectID: "id-abc", AccessToken: "access-abc", RefreshToken: "refresh-abc"}}, f.store.Primary())
	require.Equal(t, []string{"New Auth - User: alice (ID: id-abc)"}, f.notes.Messages())
}

func TestDone_Upserts(t *testing.T) {
	f := setupTestFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, intake.RouteDone+"?code=abc", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, intake.RouteDone+"?code=abc", "").Code)
	require.Len(t, f.store.Primary(), 1, "a repeat authorization replaces the stored pair")
}

func TestDone_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		target string
		setup  func(f *testFixture)
		mutate func(*config.Settings)
		status int
	}{
		{name: "missing code", target: intake.RouteDone, status: http.StatusBadRequest},
		{name: "provider error", target: intake.RouteDone + "?error=access_denied", status: http.StatusBadRequest},
		{name: "forged state", target: intake.RouteDone + "?code=abc&state=forged", status: http.StatusBadRequest},
		{
			name:   "state required",
			target: intake.RouteDone + "?code=abc",
			mutate: func(s *config.Settings) { s.RequireState = true },
			status: http.StatusBadRequest,
		},
		{
			name:   "exchange failure",
			target: intake.RouteDone + "?code=abc",
			setup:  func(f *testFixture) { f.provider.failExchange = true },
			status: http.StatusBadGateway,
		},
		{
			name:   "identity failure",
			target: intake.RouteDone + "?code=abc",
			setup:  func(f *testFixture) { f.provider.failLookup = true },
			status: http.StatusBadGateway,
		},
		{
			name:   "store failure",
			target: intake.RouteDone + "?code=abc",
			setup:  func(f *testFixture) { f.store.CommitErr = errors.New("read-only") },
			status: http.StatusInternalServerError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var mutate []func(*config.Settings)
			if tc.mutate != nil {
				mutate = append(mutate, tc.mutate)
			}
			f := setupTestFixture(t, mutate...)
			if tc.setup != nil {
				tc.setup(f)
			}

			rec := f.do(t, http.MethodGet, tc.target, "")
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Empty(t, f.store.Primary())
			require.Empty(t, f.notes.Messages())
		})
	}
}

func TestDone_StateRequiredByDefault(t *testing.T) {
	defaults, err := config.LoadWith(map[string]string{})
	require.NoError(t, err)
	f := setupTestFixture(t, func(s *config.Settings) { s.RequireState = defaults.GetRequireState() })

	rec := f.do(t, http.MethodGet, intake.RouteDone+"?code=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Empty(t, f.store.Primary())
}

func TestAdmin_Authorization(t *testing.T) {
	f := setupTestFixture(t)

	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, intake.RouteAdminCount, "").Code)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, intake.RouteAdminCount, "wrong").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, intake.RouteAdminCount, testAdminToken).Code)

	disabled := setupTestFixture(t, func(s *config.Settings) { s.AdminToken = "" })
	require.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodPost, intake.RouteAdminRefresh, "anything").Code)
}

func TestAdmin_RefreshPullCount(t *testing.T) {
	f := setupTestFixture(t)
	for _, code := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, intake.RouteDone+"?code="+code, "").Code)
	}

	count := decode[map[string]int](t, f.do(t, http.MethodGet, intake.RouteAdminCount, testAdminToken))
	require.Zero(t, count["count"], "nothing is refreshed yet")

	rec := f.do(t, http.MethodPost, intake.RouteAdminRefresh, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refresh := decode[map[string]any](t, rec)
	require.Equal(t, float64(3), refresh["total"])
	require.Equal(t, float64(3), refresh["succeeded"])

	count = decode[map[string]int](t, f.do(t, http.MethodGet, intake.RouteAdminCount, testAdminToken))
	require.Equal(t, 3, count["count"])

	rec = f.do(t, http.MethodPost, intake.RouteAdminPull+"?amount=2", testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pull := decode[map[string]any](t, rec)
	require.Equal(t, testGroup, pull["group_id"])
	require.Equal(t, float64(2), pull["added"])
	require.Equal(t, float64(1), pull["remaining"])

	messages := f.notes.Messages()
	require.True(t, strings.HasPrefix(messages[len(messages)-2], "Token refresh complete"))
	require.True(t, strings.HasPrefix(messages[len(messages)-1], "Pull complete"))
}

func TestAdmin_PullValidation(t *testing.T) {
	f := setupTestFixture(t, func(s *config.Settings) { s.DefaultGroupID = "" })

	for _, target := range []string{
		intake.RouteAdminPull,
		intake.RouteAdminPull + "?amount=zero&group=g",
		intake.RouteAdminPull + "?amount=0&group=g",
		intake.RouteAdminPull + "?amount=3",
	} {
		rec := f.do(t, http.MethodPost, target, testAdminToken)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAdmin_BatchInProgress(t *testing.T) {
	f := setupTestFixture(t)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.gate.Do(func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	rec := f.do(t, http.MethodPost, intake.RouteAdminRefresh, testAdminToken)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, intake.RouteAdminPull+"?amount=1", testAdminToken)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, intake.RouteAdminRefresh, testAdminToken).Code)
}

func TestAdmin_StoreUnavailable(t *testing.T) {
	f := setupTestFixture(t)
	f.store.LoadErr = errors.New("disk gone")

	require.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, intake.RouteAdminRefresh, testAdminToken).Code)
	require.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, intake.RouteAdminCount, testAdminToken).Code)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	handler := intake.ChainMiddleware(func(http.ResponseWriter, *http.Request) { panic("boom") }, f.server.RecoverMiddleware)

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { handler(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
