package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gamewallet/internal/dependencies/clock"
	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/services/ledger"
	"github.com/mcoot/gamewallet/internal/storage"
)

// Session is an issued bearer token
type Session struct {
	Token     string
	AccountID model.AccountID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims are the validated contents of a token
type Claims struct {
	TokenID   string
	AccountID model.AccountID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config holds configuration for the auth service
type Config struct {
	// Secret signs tokens (HS256) and must not be empty
	Secret     []byte
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
}

// DefaultConfig returns default auth configuration without a secret
func DefaultConfig() Config {
	return Config{
		Issuer:     "game-wallet",
		TokenTTL:   24 * time.Hour,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Service handles signup, credential checks and token issuance.
// Tokens are stateless; logging out is done by the client discarding its token.
type Service struct {
	ledger  *ledger.Service
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison
	dummyHashOnce sync.Once
	dummyHash     []byte
}

// New creates a new auth Service
func New(ledger *ledger.Service, storage storage.Storage, clock clock.Clock, logger *slog.Logger, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	return &Service{
		ledger:  ledger,
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "auth")),
		cfg:     cfg,
	}
}

// Signup hashes the password and creates the account
func (s *Service) Signup(ctx context.Context, username, password, referralCode string) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.ledger.CreateAccount(ctx, username, string(hash), referralCode)
}

// Authenticate checks credentials and issues a session token.
// Unknown usernames and wrong passwords both return model.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	acct, err := s.storage.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.getDummyHash(), []byte(password))
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	session, err := s.issue(acct.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "session issued",
		slog.String("account_id", string(acct.ID)),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// ValidateToken verifies the signature, algorithm, issuer and expiry of a token.
// Any failure is model.ErrUnauthorized.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &registered,
		func(*jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUnauthorized, err)
	}
	if registered.Subject == "" || registered.IssuedAt == nil {
		return nil, fmt.Errorf("%w: token has no subject", model.ErrUnauthorized)
	}

	return &Claims{
		TokenID:   registered.ID,
		AccountID: model.AccountID(registered.Subject),
		IssuedAt:  registered.IssuedAt.UTC(),
		ExpiresAt: registered.ExpiresAt.UTC(),
	}, nil
}

// Resolve validates a token and loads the account it was issued to
func (s *Service) Resolve(ctx context.Context, token string) (*model.Account, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	acct, err := s.storage.GetAccount(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: unknown account", model.ErrUnauthorized)
		}
		return nil, err
	}
	return acct, nil
}

func (s *Service) issue(id model.AccountID) (*Session, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   string(id),
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Session{
		Token:     token,
		AccountID: id,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	}, nil
}

func (s *Service) getDummyHash() []byte {
	s.dummyHashOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cfg.BcryptCost)
	})
	return s.dummyHash
}
