package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamewallet/internal/factory"
)

type CLISuite struct {
	suite.Suite
	app       *factory.TestApp
	server    *httptest.Server
	tokenFile string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.T().Setenv(EnvServer, "")
	s.T().Setenv(EnvToken, "")
	s.T().Setenv(EnvTokenFile, "")

	s.app = factory.NewTestApp()
	s.server = httptest.NewServer(s.app.Router)
	s.tokenFile = filepath.Join(s.T().TempDir(), "token")
}

func (s *CLISuite) TearDownTest() {
	s.server.Close()
	_ = s.app.Close()
}

// run executes walletctl with the test server and token file
func (s *CLISuite) run(args ...string) (string, string, error) {
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", s.server.URL, "--token-file", s.tokenFile}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (s *CLISuite) runJSON(result any, args ...string) {
	stdout, _, err := s.run(append([]string{"-o", "json"}, args...)...)
	s.Require().NoError(err)
	s.Require().NoError(json.Unmarshal([]byte(stdout), result), stdout)
}

func (s *CLISuite) login() {
	_, _, err := s.run("signup", "--user", "alice", "--pass", "secret123")
	s.Require().NoError(err)
	_, _, err = s.run("login", "--user", "alice", "--pass", "secret123")
	s.Require().NoError(err)
}

func (s *CLISuite) TestSignupPrintsAccount() {
	s.app.MockRandom.QueueString("ALICE2")

	var acct Account
	s.runJSON(&acct, "signup", "--user", "alice", "--pass", "secret123")

	s.Equal("alice", acct.Username)
	s.Equal("REF-ALICE2", acct.ReferralCode)
	s.Nil(acct.ReferredBy)
}

func (s *CLISuite) TestSignupRequiresFlags() {
	_, _, err := s.run("signup", "--user", "alice")
	s.ErrorContains(err, "pass")
}

func (s *CLISuite) TestLoginSavesTokenAndLogoutRemovesIt() {
	s.login()

	data, err := os.ReadFile(s.tokenFile)
	s.Require().NoError(err)
	s.NotEmpty(data)

	stdout, _, err := s.run("balance")
	s.Require().NoError(err)
	s.Contains(stdout, "Balance: 0 diamonds")

	stdout, _, err = s.run("logout")
	s.Require().NoError(err)
	s.Contains(stdout, "Logged out")
	s.NoFileExists(s.tokenFile)

	_, _, err = s.run("balance")
	s.ErrorContains(err, "UNAUTHORIZED")
}

func (s *CLISuite) TestWrongPassword() {
	_, _, err := s.run("signup", "--user", "alice", "--pass", "secret123")
	s.Require().NoError(err)

	_, _, err = s.run("login", "--user", "alice", "--pass", "nope")
	s.ErrorContains(err, "INVALID_CREDENTIALS")
	s.NoFileExists(s.tokenFile)
}

func (s *CLISuite) TestTopUpPurchaseAndHistory() {
	s.login()

	var topUp Mutation
	s.runJSON(&topUp, "top-up", "100")
	s.Equal("Topup Successful", topUp.Status)
	s.Equal(int64(100), topUp.Balance)

	var purchase Mutation
	s.runJSON(&purchase, "purchase", "treasure_box")
	s.Equal("Purchase Successful", purchase.Status)
	s.Equal(int64(50), purchase.Balance)
	s.Equal(int64(1), purchase.Inventory.TreasureBoxes)

	var balance Balance
	s.runJSON(&balance, "balance")
	s.Equal(int64(50), balance.Balance)

	var history History
	s.runJSON(&history, "history", "--limit", "1")
	s.Require().Len(history.Entries, 1)
	s.Equal("purchase", history.Entries[0].Kind)

	stdout, _, err := s.run("history")
	s.Require().NoError(err)
	s.Contains(stdout, "purchase treasure_box")
	s.Contains(stdout, "top_up")
}

func (s *CLISuite) TestRepeatedIdempotencyKeyReplays() {
	s.login()
	_, _, err := s.run("top-up", "20")
	s.Require().NoError(err)

	var first, second Mutation
	s.runJSON(&first, "purchase", "gold_coin", "--idempotency-key", "order-7")
	s.runJSON(&second, "purchase", "gold_coin", "--idempotency-key", "order-7")

	s.False(first.Replayed)
	s.True(second.Replayed)
	s.Equal(first.Entry.ID, second.Entry.ID)
	s.Equal(int64(10), second.Balance)
}

func (s *CLISuite) TestFailures() {
	s.login()

	_, _, err := s.run("purchase", "gold_coin")
	s.ErrorContains(err, "INSUFFICIENT_BALANCE")

	_, _, err = s.run("purchase", "sword")
	s.ErrorContains(err, "UNKNOWN_ITEM")

	_, _, err = s.run("top-up", "0")
	s.ErrorContains(err, "INVALID_AMOUNT")

	_, _, err = s.run("top-up", "ten")
	s.ErrorContains(err, "whole number")
}

func (s *CLISuite) TestHealth() {
	var health HealthResult
	s.runJSON(&health, "health")

	s.Equal("UP", health.Status)
	s.Equal("CONNECTED", health.Storage)
}

func (s *CLISuite) TestVerboseTracesRequests() {
	_, stderr, err := s.run("-v", "signup", "--user", "alice", "--pass", "pw")
	s.Require().NoError(err)
	s.Contains(stderr, "POST /signup -> 201")
}
