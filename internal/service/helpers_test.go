package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authcore/internal/config"
	"github.com/tazhibayda/authcore/internal/domain"
	"github.com/tazhibayda/authcore/internal/repo/memstore"
	"github.com/tazhibayda/authcore/internal/service"
)

var testAuthConfig = config.AuthConfig{
	Secret:       "test-secret",
	AccessTTL:    15 * time.Minute,
	RefreshTTL:   14 * 24 * time.Hour,
	ResetTTL:     time.Hour,
	VerifyTTL:    24 * time.Hour,
	MagicLinkTTL: 15 * time.Minute,
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To    string
	Type  domain.TokenType
	Token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error // returned by Send instead of recording
}

func (m *recordingMailer) Send(ctx context.Context, to string, typ domain.TokenType, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{To: to, Type: typ, Token: token})
	return nil
}

func (m *recordingMailer) failWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// last returns the newest token mailed to `to` with type typ.
func (m *recordingMailer) last(t *testing.T, to string, typ domain.TokenType) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to && m.sent[i].Type == typ {
			return m.sent[i].Token
		}
	}
	t.Fatalf("no %s mail sent to %s", typ, to)
	return ""
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordedEvent struct {
	Key   string
	Event any
}

type recordingPub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPub) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Key: key, Event: event})
	return nil
}

func (p *recordingPub) Close() error { return nil }

func (p *recordingPub) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Key)
	}
	return out
}

type testEnv struct {
	Core   *service.Core
	Store  *memstore.Store
	Mail   *recordingMailer
	Events *recordingPub
	Clock  *clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		Store:  memstore.New(),
		Mail:   &recordingMailer{},
		Events: &recordingPub{},
		Clock:  newClock(),
	}
	env.Core = service.New(testAuthConfig, service.Deps{
		Repo:     env.Store,
		Mailer:   env.Mail,
		Events:   env.Events,
		Exchange: "auth.events",
		Now:      env.Clock.Now,
	})
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *service.Session {
	t.Helper()
	s, err := e.Core.Register(context.Background(), service.RegisterInput{Email: email, Password: password, Name: "Test"})
	require.NoError(t, err)
	return s
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}
