// Package servertest boots a complete lending gateway on a loopback port for
// integration tests: miniredis for the ephemeral stores, an empty repository
// with a seeded admin, and a capturing mailer so tests can read the codes and
// tokens a real deployment would email out.
package servertest

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/server"
)

const (
	AdminEmail    = "admin@shelfwise.local"
	AdminPassword = "AdminPass1!"
)

// CaptureMailer records deliveries instead of sending them.
type CaptureMailer struct {
	mu     sync.Mutex
	otps   map[string]string
	resets map[string]string
}

func NewCaptureMailer() *CaptureMailer {
	return &CaptureMailer{
		otps:   make(map[string]string),
		resets: make(map[string]string),
	}
}

func (m *CaptureMailer) SendOTP(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[email] = code
	return nil
}

func (m *CaptureMailer) SendResetToken(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[email] = token
	return nil
}

// LastOTP returns the most recent verification code delivered to email.
func (m *CaptureMailer) LastOTP(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.otps[email]
}

// LastResetToken returns the most recent reset token delivered to email.
func (m *CaptureMailer) LastResetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets[email]
}

// Gateway is a running test instance.
type Gateway struct {
	BaseURL string
	Config  *config.Config
	Repo    *server.Repository
	Mailer  *CaptureMailer
	Redis   *miniredis.Miniredis
	Logger  *logrus.Logger
}

// Start boots a gateway on 127.0.0.1:0 and tears it down with the test.
func Start(t *testing.T) *Gateway {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{}
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.IdleTimeout = 120 * time.Second
	cfg.JWT.Secret = "servertest-secret"
	cfg.JWT.Issuer = "shelfwise-gateway"
	cfg.JWT.SessionTTL = 24 * time.Hour
	cfg.JWT.CookieName = "shelfwise_session"
	cfg.Lending.LoanPeriodDays = 14
	cfg.Lending.OTPTTL = 5 * time.Minute
	cfg.Lending.ResetTokenTTL = 10 * time.Minute
	cfg.Admin.Email = AdminEmail
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = AdminPassword
	cfg.CORS.AllowOrigins = "*"
	cfg.Gateway.Timeout = 10 * time.Second

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo := server.NewRepository()
	require.NoError(t, server.SeedAdmin(&cfg.Admin, repo, logger))

	mailer := NewCaptureMailer()
	app := server.New(cfg, logger, repo, redisClient, mailer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		if err := app.Listener(ln); err != nil {
			logger.WithError(err).Error("test gateway stopped")
		}
	}()
	t.Cleanup(func() {
		_ = app.ShutdownWithTimeout(5 * time.Second)
	})

	baseURL := "http://" + ln.Addr().String()
	cfg.Gateway.BaseURL = baseURL
	waitReady(t, baseURL)

	return &Gateway{
		BaseURL: baseURL,
		Config:  cfg,
		Repo:    repo,
		Mailer:  mailer,
		Redis:   mr,
		Logger:  logger,
	}
}

func waitReady(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("test gateway never became healthy")
}
