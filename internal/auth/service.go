package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pliu/simquery/internal/models"
	"github.com/pliu/simquery/internal/store"
	"github.com/pliu/simquery/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyExists            = errors.New("email already registered")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrEmailNotVerified         = errors.New("email not verified")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
	ErrAlreadyVerified          = errors.New("email already verified")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
)

// Mailer delivers verification emails. Implementations may block; the
// service calls them off the request path.
type Mailer interface {
	SendVerificationEmail(to, name, link string) error
}

type Options struct {
	VerificationTTL time.Duration
	// RequireVerifiedEmail rejects logins for accounts that have not
	// confirmed their email address.
	RequireVerifiedEmail bool
	// VerifyURL is the page that receives the verification token as a
	// "token" query parameter.
	VerifyURL  string
	BcryptCost int
}

type RegisterResult struct {
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requiresVerification"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds until the access token expires
}

type Service struct {
	store  store.Store
	tokens *TokenService
	mailer Mailer
	logger *slog.Logger
	opts   Options
	now    func() time.Time

	// dummyHash is compared against on unknown emails so both login failure
	// paths cost one bcrypt comparison.
	dummyHash []byte
	wg        sync.WaitGroup
}

func NewService(st store.Store, tokens *TokenService, mailer Mailer, logger *slog.Logger, opts Options) (*Service, error) {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.VerificationTTL == 0 {
		opts.VerificationTTL = 24 * time.Hour
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &Service{
		store:     st,
		tokens:    tokens,
		mailer:    mailer,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, email, password, fullName string) (*RegisterResult, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if err := validate.First(
		validate.Email("email", email),
		validate.Password("password", password),
		validate.Length("fullName", fullName, 1, 100),
	); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	token := uuid.NewString()
	expiresAt := now.Add(s.opts.VerificationTTL)
	user := &models.User{
		ExternalID:                 uuid.NewString(),
		Email:                      email,
		PasswordHash:               string(hash),
		FullName:                   fullName,
		Role:                       models.RoleUser,
		VerificationToken:          &token,
		VerificationTokenExpiresAt: &expiresAt,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ExternalID)
	s.sendVerification(user.Email, user.FullName, token)

	return &RegisterResult{
		Message:              "Please verify your email address",
		RequiresVerification: true,
	}, nil
}

// sendVerification dispatches the email in the background. Delivery
// failures are logged and never reach the caller.
func (s *Service) sendVerification(to, name, token string) {
	link := s.opts.VerifyURL + "?token=" + url.QueryEscape(token)
	s.wg.Go(func() {
		if err := s.mailer.SendVerificationEmail(to, name, link); err != nil {
			s.logger.Error("failed to send verification email", "to", to, "error", err)
		}
	})
}

// Wait blocks until pending verification emails have been handed to the mailer.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidVerificationToken
	}
	if err := s.store.ConsumeVerificationToken(ctx, token, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("consume verification token: %w", err)
	}
	return nil
}

// ResendVerification replaces the pending verification token and emails
// it again. Unknown addresses succeed silently.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validate.Email("email", email); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("verification resend for unknown email")
			return nil
		}
		return fmt.Errorf("get user: %w", err)
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	now := s.now().UTC()
	token := uuid.NewString()
	if err := s.store.SetVerificationToken(ctx, user.ID, token, now.Add(s.opts.VerificationTTL), now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAlreadyVerified
		}
		return fmt.Errorf("set verification token: %w", err)
	}

	s.sendVerification(user.Email, user.FullName, token)
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if err := validate.First(
		validate.Required("email", email),
		validate.Required("password", password),
	); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if s.opts.RequireVerifiedEmail && !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return s.issuePair(user)
}

// Refresh exchanges a refresh token for a new access and refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := validate.Required("refreshToken", refreshToken); err != nil {
		return nil, err
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	user, err := s.store.GetUserByExternalID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.Email != claims.Email {
		return nil, ErrInvalidRefreshToken
	}

	return s.issuePair(user)
}

func (s *Service) issuePair(user *models.User) (*TokenPair, error) {
	access, _, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
	}, nil
}

// Profile returns the caller's account. A valid token whose user no longer
// exists is reported as ErrInvalidToken.
func (s *Service) Profile(ctx context.Context, p models.Principal) (*models.User, error) {
	user, err := s.store.GetUserByExternalID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
