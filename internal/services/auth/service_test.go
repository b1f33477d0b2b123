package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gamewallet/internal/dependencies/mocks"
	"github.com/mcoot/gamewallet/internal/model"
	"github.com/mcoot/gamewallet/internal/services/ledger"
	"github.com/mcoot/gamewallet/internal/storage/memory"
	"github.com/mcoot/gamewallet/internal/testutil"
)

var testSecret = []byte("test-secret-0123456789abcdef")

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	ledger  *ledger.Service
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.ledger = ledger.NewService(s.storage, s.clock, mocks.NewMockRandom(), nil, nil, testutil.NopLogger(), ledger.Config{})
	s.service = s.newService(testSecret, "game-wallet")
	s.ctx = context.Background()
}

func (s *ServiceSuite) newService(secret []byte, issuer string) *Service {
	cfg := DefaultConfig()
	cfg.Secret = secret
	cfg.Issuer = issuer
	cfg.BcryptCost = bcrypt.MinCost
	return New(s.ledger, s.storage, s.clock, testutil.NopLogger(), cfg)
}

func (s *ServiceSuite) signup(username, password string) *model.Account {
	acct, err := s.service.Signup(s.ctx, username, password, "")
	s.Require().NoError(err)
	return acct
}

// sign creates a token with arbitrary claims using the test secret
func (s *ServiceSuite) sign(claims jwt.RegisteredClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	s.Require().NoError(err)
	return token
}

// Signup tests

func (s *ServiceSuite) TestSignupStoresBcryptHash() {
	acct := s.signup("alice", "s3cret")

	stored, err := s.storage.GetAccount(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.NotEqual("s3cret", stored.PasswordHash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")))
}

func (s *ServiceSuite) TestSignupDuplicateUsername() {
	s.signup("alice", "pw")

	_, err := s.service.Signup(s.ctx, "alice", "other", "")
	s.ErrorIs(err, model.ErrDuplicateUsername)
}

func (s *ServiceSuite) TestSignupWithReferral() {
	alice := s.signup("alice", "pw")

	bob, err := s.service.Signup(s.ctx, "bob", "pw", alice.ReferralCode)
	s.Require().NoError(err)
	s.Equal(alice.ReferralCode, bob.ReferredBy)

	_, err = s.service.Signup(s.ctx, "carol", "pw", "REF-UNKNWN")
	s.ErrorIs(err, model.ErrInvalidReferralCode)
}

func (s *ServiceSuite) TestSignupRejectsOverlongPassword() {
	_, err := s.service.Signup(s.ctx, "alice", strings.Repeat("x", 73), "")
	s.Error(err)

	_, err = s.storage.GetAccountByUsername(s.ctx, "alice")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

// Authenticate tests

func (s *ServiceSuite) TestAuthenticateSucceeds() {
	acct := s.signup("alice", "pw")

	session, err := s.service.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)
	s.NotEmpty(session.Token)
	s.Equal(acct.ID, session.AccountID)
	s.Equal(s.clock.Now(), session.IssuedAt)
	s.Equal(s.clock.Now().Add(24*time.Hour), session.ExpiresAt)
}

func (s *ServiceSuite) TestAuthenticateIssuesDistinctTokens() {
	s.signup("alice", "pw")

	first, err := s.service.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)
	second, err := s.service.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)
	s.NotEqual(first.Token, second.Token)
}

func (s *ServiceSuite) TestAuthenticateWrongPassword() {
	s.signup("alice", "pw")

	_, err := s.service.Authenticate(s.ctx, "alice", "wrong")
	s.ErrorIs(err, model.ErrInvalidCredentials)
}

func (s *ServiceSuite) TestAuthenticateUnknownUser() {
	_, err := s.service.Authenticate(s.ctx, "nobody", "pw")
	s.ErrorIs(err, model.ErrInvalidCredentials)
}

// ValidateToken tests

func (s *ServiceSuite) TestValidateTokenSucceeds() {
	acct := s.signup("alice", "pw")
	session, err := s.service.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)

	claims, err := s.service.ValidateToken(session.Token)
	s.Require().NoError(err)
	s.Equal(acct.ID, claims.AccountID)
	s.Equal(session.ExpiresAt, claims.ExpiresAt)
	s.NotEmpty(claims.TokenID)
}

func (s *ServiceSuite) TestValidateTokenExpired() {
	s.signup("alice", "pw")
	session, err := s.service.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)

	s.clock.Advance(24*time.Hour - time.Second)
	_, err = s.service.ValidateToken(session.Token)
	s.NoError(err)

	s.clock.Advance(2 * time.Second)
	_, err = s.service.ValidateToken(session.Token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestValidateTokenGarbage() {
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := s.service.ValidateToken(token)
		s.ErrorIs(err, model.ErrUnauthorized, "token %q", token)
	}
}

func (s *ServiceSuite) TestValidateTokenWrongSecret() {
	s.signup("alice", "pw")
	other := s.newService([]byte("another-secret"), "game-wallet")
	session, err := other.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)

	_, err = s.service.ValidateToken(session.Token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestValidateTokenWrongIssuer() {
	s.signup("alice", "pw")
	other := s.newService(testSecret, "someone-else")
	session, err := other.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)

	_, err = s.service.ValidateToken(session.Token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestValidateTokenRejectsNoneAlgorithm() {
	acct := s.signup("alice", "pw")
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   string(acct.ID),
		Issuer:    "game-wallet",
		IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
		ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.service.ValidateToken(token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestValidateTokenRequiresExpiry() {
	acct := s.signup("alice", "pw")
	token := s.sign(jwt.RegisteredClaims{
		Subject:  string(acct.ID),
		Issuer:   "game-wallet",
		IssuedAt: jwt.NewNumericDate(s.clock.Now()),
	})

	_, err := s.service.ValidateToken(token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

func (s *ServiceSuite) TestValidateTokenRequiresSubject() {
	token := s.sign(jwt.RegisteredClaims{
		Issuer:    "game-wallet",
		IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
		ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
	})

	_, err := s.service.ValidateToken(token)
	s.ErrorIs(err, model.ErrUnauthorized)
}

// Resolve tests

func (s *ServiceSuite) TestResolveLoadsAccount() {
	acct := s.signup("alice", "pw")
	session, err := s.service.Authenticate(s.ctx, "alice", "pw")
	s.Require().NoError(err)

	resolved, err := s.service.Resolve(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(acct.ID, resolved.ID)
	s.Equal("alice", resolved.Username)
}

func (s *ServiceSuite) TestResolveUnknownAccount() {
	token := s.sign(jwt.RegisteredClaims{
		Subject:   "deleted-account",
		Issuer:    "game-wallet",
		IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
		ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
	})

	_, err := s.service.Resolve(s.ctx, token)
	s.ErrorIs(err, model.ErrUnauthorized)
}
