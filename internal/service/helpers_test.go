package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"taskhub/internal/config"
	"taskhub/internal/mail"
	"taskhub/internal/models"
	"taskhub/internal/repository"
	"taskhub/internal/repository/memory"
	"taskhub/internal/security"
)

type fakeMailer struct {
	mu    sync.Mutex
	sent  []mail.Message
	err   error
	noID  bool
	count int
}

func (f *fakeMailer) Dispatch(_ context.Context, msg mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	f.count++
	if f.noID {
		return "", nil
	}
	return fmt.Sprintf("%d-0", f.count), nil
}

func (f *fakeMailer) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}

type enqueued struct {
	taskType string
	payload  any
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks []enqueued
}

func (f *fakeTasks) Enqueue(_ context.Context, taskType string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, enqueued{taskType: taskType, payload: payload})
	return "1-0", nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[event+"/"+outcome]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store  *memory.Store
	auth   *AuthService
	mfa    *MFAService
	codec  *security.TokenCodec
	mailer *fakeMailer
	tasks  *fakeTasks
	events *countingRecorder
	clock  *testClock
	cfg    *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:  "access-secret",
			JWTRefreshSecret: "refresh-secret",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    30 * 24 * time.Hour,
			RefreshThreshold: 24 * time.Hour,
			MaxSessions:      10,
		},
		Verification: config.VerificationConfig{
			EmailCodeTTL:     45 * time.Minute,
			ResetCodeTTL:     time.Hour,
			ResetWindow:      3 * time.Minute,
			ResetMaxInWindow: 2,
		},
		MFA: config.MFAConfig{Issuer: "TaskHub"},
		App: config.AppConfig{ClientOrigin: "http://localhost:5173"},
	}
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()

	cfg := testConfig()
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	store := memory.New(opts...)
	codec := security.NewTokenCodec(cfg.Security).WithClock(clock.Now)
	f := &fixture{
		store:  store,
		codec:  codec,
		mailer: &fakeMailer{},
		tasks:  &fakeTasks{},
		events: &countingRecorder{},
		clock:  clock,
		cfg:    cfg,
	}
	f.auth = NewAuthService(AuthDeps{
		Store:  store,
		Hasher: security.NewArgon2Hasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}),
		Tokens: codec,
		Mailer: f.mailer,
		Tasks:  f.tasks,
		Events: f.events,
	}, cfg, zerolog.Nop()).WithClock(clock.Now)
	f.mfa = NewMFAService(store, security.NewTOTP(cfg.MFA.Issuer), f.auth, zerolog.Nop())
	return f
}

var errCommit = errors.New("commit tx: connection reset")

// commitFailingStore runs each unit of work and then fails its commit, so
// none of the writes survive.
type commitFailingStore struct {
	*memory.Store
}

func (s commitFailingStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		return errCommit
	})
}

// authOver builds a second AuthService sharing the fixture's mailer and clock
// on top of another store.
func (f *fixture) authOver(store repository.Store) *AuthService {
	return NewAuthService(AuthDeps{
		Store:  store,
		Hasher: security.NewArgon2Hasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}),
		Tokens: f.codec,
		Mailer: f.mailer,
		Events: f.events,
	}, f.cfg, zerolog.Nop()).WithClock(f.clock.Now)
}

func (f *fixture) register(t *testing.T, email, password string) models.User {
	t.Helper()
	user, err := f.auth.Register(context.Background(), RegisterInput{Name: "Test User", Email: email, Password: password})
	require.NoError(t, err)
	return user
}

func (f *fixture) login(t *testing.T, email, password string) *Tokens {
	t.Helper()
	result, err := f.auth.VerifyCredentials(context.Background(), email, password, "test-agent")
	require.NoError(t, err)
	require.False(t, result.MFARequired)
	require.NotNil(t, result.Tokens)
	return result.Tokens
}

func (f *fixture) sessionCount(t *testing.T, userID string) int {
	t.Helper()
	n, err := f.store.Sessions().CountByUser(context.Background(), userID)
	require.NoError(t, err)
	return n
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a six digit code outside the validation window.
func wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := time.Now()
	valid := map[string]bool{}
	for _, offset := range []time.Duration{-60 * time.Second, -30 * time.Second, 0, 30 * time.Second, 60 * time.Second} {
		code, err := totp.GenerateCode(secret, now.Add(offset))
		require.NoError(t, err)
		valid[code] = true
	}
	for i := 0; i < 1000000; i++ {
		candidate := fmt.Sprintf("%06d", i)
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("no wrong code found")
	return ""
}
