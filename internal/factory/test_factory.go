package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gamewallet/internal/dependencies/mocks"
	"github.com/mcoot/gamewallet/internal/metrics"
	"github.com/mcoot/gamewallet/internal/middleware"
	"github.com/mcoot/gamewallet/internal/services/auth"
	"github.com/mcoot/gamewallet/internal/services/ledger"
	"github.com/mcoot/gamewallet/internal/storage/memory"
	"github.com/mcoot/gamewallet/internal/testutil"
)

// TestSecret signs tokens issued by a TestApp
var TestSecret = []byte("test-secret-do-not-use-in-production")

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// Passwords are hashed at bcrypt's minimum cost to keep tests fast.
func NewTestApp() *TestApp {
	return NewTestAppWithLedgerConfig(ledger.Config{})
}

// NewTestAppWithLedgerConfig is NewTestApp with custom ledger limits
func NewTestAppWithLedgerConfig(ledgerCfg ledger.Config) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	authCfg := auth.DefaultConfig()
	authCfg.Secret = TestSecret
	authCfg.BcryptCost = bcrypt.MinCost

	app := newWithDependencies(dependencies{
		storage: memory.New(),
		clock:   mockClock,
		random:  mockRandom,
		metrics: metrics.New(),
		logger:  testutil.NopLogger(),
		auth:    authCfg,
		ledger:  ledgerCfg,
		cors:    middleware.DefaultCORSConfig(),
	})

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
