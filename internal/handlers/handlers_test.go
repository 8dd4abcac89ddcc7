package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/pliu/simquery/internal/aigateway"
	"github.com/pliu/simquery/internal/auth"
	"github.com/pliu/simquery/internal/chat"
	"github.com/pliu/simquery/internal/store/sqlstore"
	"github.com/pliu/simquery/internal/ws"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *captureMailer) SendVerificationEmail(to, name, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[to] = link
	return nil
}

type testServer struct {
	t      *testing.T
	router http.Handler
	auth   *auth.Service
	mailer *captureMailer
	store  *sqlstore.SQLStore
}

type serverOptions struct {
	aiHandler       http.HandlerFunc
	aiTimeout       time.Duration
	requireVerified bool
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	aiOpts := aigateway.Options{Timeout: opts.aiTimeout}
	if opts.aiHandler != nil {
		ai := httptest.NewServer(opts.aiHandler)
		t.Cleanup(ai.Close)
		aiOpts.BaseURL = ai.URL
	}
	scorer := aigateway.New(nil, aiOpts)

	tokens := auth.NewTokenService("handler-test-secret-handler-test-secret", 15*time.Minute, 24*time.Hour)
	mailer := &captureMailer{}
	authSvc, err := auth.NewService(st, tokens, mailer, logger, auth.Options{
		VerificationTTL:      24 * time.Hour,
		RequireVerifiedEmail: opts.requireVerified,
		VerifyURL:            "http://localhost:3000/verify-email",
		BcryptCost:           bcrypt.MinCost,
	})
	require.NoError(t, err)

	hub := ws.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	router := NewRouter(Deps{
		Auth:     authSvc,
		Tokens:   tokens,
		Chats:    chat.NewService(st, scorer, hub, logger),
		Hub:      hub,
		Upgrader: ws.NewUpgrader([]string{"*"}),
		Logger:   logger,
	})

	return &testServer{t: t, router: router, auth: authSvc, mailer: mailer, store: st}
}

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// verificationToken returns the token from the last email sent to addr.
func (s *testServer) verificationToken(addr string) string {
	s.t.Helper()
	s.auth.Wait()
	s.mailer.mu.Lock()
	link, ok := s.mailer.links[addr]
	s.mailer.mu.Unlock()
	require.True(s.t, ok, "no verification email for %s", addr)
	u, err := url.Parse(link)
	require.NoError(s.t, err)
	return u.Query().Get("token")
}

// signup registers, verifies and logs in a user, returning the access token.
func (s *testServer) signup(email string) auth.TokenPair {
	s.t.Helper()
	rr := s.do("POST", "/auth/register", RegisterRequest{Email: email, Password: "password123", FullName: "Test User"}, "")
	require.Equal(s.t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = s.do("GET", "/auth/verify-email?token="+url.QueryEscape(s.verificationToken(email)), nil, "")
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do("POST", "/auth/login", LoginRequest{Email: email, Password: "password123"}, "")
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[auth.TokenPair](s.t, rr)
}
