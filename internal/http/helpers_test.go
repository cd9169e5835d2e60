package http_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/authcore/internal/config"
	"github.com/tazhibayda/authcore/internal/domain"
	api "github.com/tazhibayda/authcore/internal/http"
	"github.com/tazhibayda/authcore/internal/repo/memstore"
	"github.com/tazhibayda/authcore/internal/service"
)

type mailbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (m *mailbox) Send(ctx context.Context, to string, typ domain.TokenType, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[to+"|"+string(typ)] = token
	return nil
}

func (m *mailbox) token(to string, typ domain.TokenType) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[to+"|"+string(typ)]
}

type fakeGoogle struct {
	profile domain.OAuthProfile
	err     error
}

func (g *fakeGoogle) NewState() (string, error)   { return "state-1", nil }
func (g *fakeGoogle) VerifyState(s string) bool   { return s == "state-1" }
func (g *fakeGoogle) AuthURL(state string) string { return "https://accounts.example/auth?state=" + state }

func (g *fakeGoogle) Exchange(ctx context.Context, code string) (*domain.OAuthProfile, error) {
	if g.err != nil {
		return nil, g.err
	}
	p := g.profile
	return &p, nil
}

type testEnv struct {
	Handler *api.Handler
	Router  *gin.Engine
	Store   *memstore.Store
	Mail    *mailbox
	Google  *fakeGoogle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		Store: memstore.New(),
		Mail:  &mailbox{last: map[string]string{}},
		Google: &fakeGoogle{profile: domain.OAuthProfile{
			ProviderID: "g-1", Email: "gina@example.com", Name: "Gina",
		}},
	}
	core := service.New(config.AuthConfig{
		Secret:       "http-test-secret",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
		ResetTTL:     time.Hour,
		VerifyTTL:    time.Hour,
		MagicLinkTTL: 15 * time.Minute,
	}, service.Deps{Repo: env.Store, Mailer: env.Mail})
	env.Handler = api.NewHandler(core, api.CookieConfig{MaxAge: 15 * time.Minute}, nil)
	env.Handler.Google = env.Google
	env.Router = api.NewRouter(env.Handler, api.RouterOptions{})
	return env
}

func (e *testEnv) do(method, path, body string, hdr map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	e.Router.ServeHTTP(w, req)
	return w
}

func bearer(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
