package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"matrix-bank/internal/config"
	"matrix-bank/internal/server"
	"matrix-bank/migrations"
)

type IntegrationTestSuite struct {
	suite.Suite
	pgContainer    *postgres.PostgresContainer
	serverInstance *server.Server
	baseURL        string
	client         *http.Client
	dbConnStr      string

	// user ids resolved during setup, keyed by username
	users map[string]string
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("matrix_bank"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		s.T().Fatalf("failed to start postgres container: %s", err)
	}
	s.pgContainer = pgContainer

	s.dbConnStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		s.T().Fatalf("failed to get connection string: %s", err)
	}

	if err := s.runMigrations(); err != nil {
		s.T().Fatalf("failed to run migrations: %s", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		s.T().Fatalf("failed to get container host: %s", err)
	}
	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		s.T().Fatalf("failed to get mapped port: %s", err)
	}

	cfg := &config.Config{
		DBHost:          host,
		DBPort:          mappedPort.Port(),
		DBUser:          "postgres",
		DBPassword:      "password",
		DBName:          "matrix_bank",
		DBSSLMode:       "disable",
		ServerPort:      "0",
		LockTimeout:     3 * time.Second,
		HistoryPageSize: 5,
	}

	serverInstance, port, err := server.StartServer(cfg)
	if err != nil {
		s.T().Fatalf("failed to start server: %s", err)
	}
	s.serverInstance = serverInstance
	s.baseURL = "http://localhost:" + port
	s.client = &http.Client{Timeout: 30 * time.Second}
	s.users = make(map[string]string)

	s.waitForServerReady()
}

func (s *IntegrationTestSuite) runMigrations() error {
	db, err := sql.Open("postgres", s.dbConnStr)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Apply(db)
}

func (s *IntegrationTestSuite) waitForServerReady() {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := s.client.Get(s.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				// Both health outcomes answer JSON; the header is set
				// before the status is written.
				require.Equal(s.T(), "application/json", resp.Header.Get("Content-Type"))
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.T().Fatal("server not ready in time")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.serverInstance != nil {
		s.serverInstance.Stop(ctx)
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
}

// doRequest performs a JSON request, optionally as the given user, and
// returns the status code plus the decoded envelope.
func (s *IntegrationTestSuite) doRequest(method, path, userID string, body interface{}) (int, map[string]interface{}) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reader)
	require.NoError(s.T(), err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var envelope map[string]interface{}
	if len(raw) > 0 {
		require.NoError(s.T(), json.Unmarshal(raw, &envelope), "body: %s", raw)
	}
	return resp.StatusCode, envelope
}

func dataField(envelope map[string]interface{}) map[string]interface{} {
	data, _ := envelope["data"].(map[string]interface{})
	return data
}

func errorCode(envelope map[string]interface{}) string {
	errData, _ := envelope["error"].(map[string]interface{})
	code, _ := errData["code"].(string)
	return code
}

func (s *IntegrationTestSuite) registerUser(username string) string {
	status, envelope := s.doRequest("POST", "/users", "", map[string]string{
		"username": username,
		"password": "login-" + username,
		"email":    username + "@nate.com",
		"fullname": username + " fullname",
	})
	require.Equal(s.T(), http.StatusCreated, status)

	data := dataField(envelope)
	id, _ := data["id"].(string)
	require.NotEmpty(s.T(), id)
	assert.Equal(s.T(), username+"@nate.com", data["email"])
	s.users[username] = id
	return id
}

func (s *IntegrationTestSuite) createAccount(username string, number int64, initialBalance, password string) (int, map[string]interface{}) {
	return s.doRequest("POST", "/accounts", s.users[username], map[string]interface{}{
		"number":            number,
		"initial_balance":   initialBalance,
		"withdraw_password": password,
	})
}

func (s *IntegrationTestSuite) deposit(number int64, amount, tel string) (int, map[string]interface{}) {
	return s.doRequest("POST", "/accounts/deposit", "", map[string]interface{}{
		"number": number,
		"amount": amount,
		"tel":    tel,
	})
}

func (s *IntegrationTestSuite) withdraw(username string, number int64, password, amount string) (int, map[string]interface{}) {
	return s.doRequest("POST", "/accounts/withdraw", s.users[username], map[string]interface{}{
		"number":   number,
		"password": password,
		"amount":   amount,
	})
}

func (s *IntegrationTestSuite) transfer(username string, source, dest int64, password, amount string) (int, map[string]interface{}) {
	return s.doRequest("POST", "/accounts/transfer", s.users[username], map[string]interface{}{
		"source_number": source,
		"dest_number":   dest,
		"password":      password,
		"amount":        amount,
	})
}

func (s *IntegrationTestSuite) accountBalance(username string, number int64) string {
	status, envelope := s.doRequest("GET", fmt.Sprintf("/accounts/%d", number), s.users[username], nil)
	require.Equal(s.T(), http.StatusOK, status)
	account, _ := dataField(envelope)["account"].(map[string]interface{})
	balance, _ := account["balance"].(string)
	return balance
}

const withdrawPassword = "1234"

func (s *IntegrationTestSuite) stepRegisterAndCreateAccounts() {
	for _, username := range []string{"bank", "matrix", "mind"} {
		s.registerUser(username)
	}

	status, _ := s.createAccount("bank", 1111, "1000", withdrawPassword)
	assert.Equal(s.T(), http.StatusCreated, status)
	status, _ = s.createAccount("matrix", 2222, "1000", withdrawPassword)
	assert.Equal(s.T(), http.StatusCreated, status)
	status, _ = s.createAccount("mind", 3333, "1000", withdrawPassword)
	assert.Equal(s.T(), http.StatusCreated, status)

	// Unauthenticated account creation is rejected.
	status, _ = s.doRequest("POST", "/accounts", "", map[string]interface{}{
		"number": 5555, "initial_balance": "0", "withdraw_password": withdrawPassword,
	})
	assert.Equal(s.T(), http.StatusUnauthorized, status)

	// Duplicate number conflicts, even across owners.
	status, envelope := s.createAccount("mind", 1111, "0", withdrawPassword)
	assert.Equal(s.T(), http.StatusConflict, status)
	assert.Equal(s.T(), "duplicate_account", errorCode(envelope))
}

func (s *IntegrationTestSuite) stepListOwnAccounts() {
	// Registration without an email is rejected.
	status, _ := s.doRequest("POST", "/users", "", map[string]string{
		"username": "mailless", "password": "pw", "fullname": "no mail",
	})
	assert.Equal(s.T(), http.StatusBadRequest, status)

	// Listing requires a caller.
	status, _ = s.doRequest("GET", "/accounts", "", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, status)

	// The listing is scoped to the caller and ordered by number.
	status, _ = s.createAccount("bank", 4444, "0", withdrawPassword)
	require.Equal(s.T(), http.StatusCreated, status)

	status, envelope := s.doRequest("GET", "/accounts", s.users["bank"], nil)
	require.Equal(s.T(), http.StatusOK, status)
	accounts, _ := dataField(envelope)["accounts"].([]interface{})
	require.Len(s.T(), accounts, 2)
	for i, wantNumber := range []float64{1111, 4444} {
		row, _ := accounts[i].(map[string]interface{})
		assert.Equal(s.T(), wantNumber, row["number"], "row %d", i)
	}

	status, envelope = s.doRequest("GET", "/accounts", s.users["mind"], nil)
	require.Equal(s.T(), http.StatusOK, status)
	accounts, _ = dataField(envelope)["accounts"].([]interface{})
	require.Len(s.T(), accounts, 1)
}

func (s *IntegrationTestSuite) stepDepositValidation() {
	status, envelope := s.deposit(9999, "100", "")
	assert.Equal(s.T(), http.StatusNotFound, status)
	assert.Equal(s.T(), "account_not_found", errorCode(envelope))

	for _, amount := range []string{"0", "-100", "10.5"} {
		status, envelope = s.deposit(2222, amount, "")
		assert.Equal(s.T(), http.StatusBadRequest, status)
		assert.Equal(s.T(), "invalid_amount", errorCode(envelope))
	}
}

func (s *IntegrationTestSuite) stepAuthorization() {
	// Wrong withdrawal password: no mutation, regardless of funds.
	status, envelope := s.withdraw("bank", 1111, "9999", "100")
	assert.Equal(s.T(), http.StatusForbidden, status)
	assert.Equal(s.T(), "wrong_password", errorCode(envelope))
	assert.Equal(s.T(), "1000", s.accountBalance("bank", 1111))

	// Non-owner cannot withdraw even with the right password.
	status, envelope = s.withdraw("matrix", 1111, withdrawPassword, "100")
	assert.Equal(s.T(), http.StatusForbidden, status)
	assert.Equal(s.T(), "not_account_owner", errorCode(envelope))

	// Non-owner cannot read the detail either.
	status, _ = s.doRequest("GET", "/accounts/1111", s.users["matrix"], nil)
	assert.Equal(s.T(), http.StatusForbidden, status)

	// A failed authorization leaves no ledger entry behind.
	status, envelope = s.doRequest("GET", "/accounts/1111", s.users["bank"], nil)
	require.Equal(s.T(), http.StatusOK, status)
	transactions, _ := dataField(envelope)["transactions"].([]interface{})
	assert.Empty(s.T(), transactions)
}

func (s *IntegrationTestSuite) stepSelfTransferRejected() {
	status, envelope := s.transfer("bank", 1111, 1111, withdrawPassword, "100")
	assert.Equal(s.T(), http.StatusBadRequest, status)
	assert.Equal(s.T(), "same_account_transfer", errorCode(envelope))
	assert.Equal(s.T(), "1000", s.accountBalance("bank", 1111))
}

func (s *IntegrationTestSuite) stepInsufficientFunds() {
	status, envelope := s.withdraw("bank", 1111, withdrawPassword, "100000")
	assert.Equal(s.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(s.T(), "insufficient_funds", errorCode(envelope))
	assert.Equal(s.T(), "1000", s.accountBalance("bank", 1111))
}

// stepHistoryScenario replays the canonical sequence: withdraw 100 from 1111,
// transfer 100 to 2222, transfer 100 to 3333, then 2222 sends 100 back. The
// 1111 history must read [900, 800, 700, 800] in creation order, each row
// seen from 1111's perspective.
func (s *IntegrationTestSuite) stepHistoryScenario() {
	status, _ := s.withdraw("bank", 1111, withdrawPassword, "100")
	require.Equal(s.T(), http.StatusCreated, status)

	status, envelope := s.transfer("bank", 1111, 2222, withdrawPassword, "100")
	require.Equal(s.T(), http.StatusCreated, status)
	// Transfer atomicity: both post-balances come back from one operation.
	transferData := dataField(envelope)
	assert.Equal(s.T(), "800", transferData["source_balance"])
	assert.Equal(s.T(), "1100", transferData["dest_balance"])

	status, _ = s.transfer("bank", 1111, 3333, withdrawPassword, "100")
	require.Equal(s.T(), http.StatusCreated, status)

	status, _ = s.transfer("matrix", 2222, 1111, withdrawPassword, "100")
	require.Equal(s.T(), http.StatusCreated, status)

	// Sum across the pair is invariant: 1111+2222 started at 2000, one
	// hundred moved each way, one hundred left to 3333 and one hundred
	// was withdrawn.
	assert.Equal(s.T(), "800", s.accountBalance("bank", 1111))
	assert.Equal(s.T(), "1000", s.accountBalance("matrix", 2222))
	assert.Equal(s.T(), "1100", s.accountBalance("mind", 3333))

	status, envelope = s.doRequest("GET", "/accounts/1111?page=0", s.users["bank"], nil)
	require.Equal(s.T(), http.StatusOK, status)

	transactions, _ := dataField(envelope)["transactions"].([]interface{})
	require.Len(s.T(), transactions, 4)

	wantTypes := []string{"WITHDRAW", "TRANSFER", "TRANSFER", "TRANSFER"}
	wantBalances := []string{"900", "800", "700", "800"}
	for i, raw := range transactions {
		row, _ := raw.(map[string]interface{})
		assert.Equal(s.T(), wantTypes[i], row["type"], "row %d", i)
		assert.Equal(s.T(), wantBalances[i], row["balance"], "row %d", i)
	}

	// The receiver of the middle transfer sees its own perspective.
	status, envelope = s.doRequest("GET", "/accounts/3333?page=0", s.users["mind"], nil)
	require.Equal(s.T(), http.StatusOK, status)
	transactions, _ = dataField(envelope)["transactions"].([]interface{})
	require.Len(s.T(), transactions, 1)
	row, _ := transactions[0].(map[string]interface{})
	assert.Equal(s.T(), "1100", row["balance"])

	// Pagination: the second page of 1111 is empty.
	status, envelope = s.doRequest("GET", "/accounts/1111?page=1", s.users["bank"], nil)
	require.Equal(s.T(), http.StatusOK, status)
	transactions, _ = dataField(envelope)["transactions"].([]interface{})
	assert.Empty(s.T(), transactions)
}

func (s *IntegrationTestSuite) stepDepositWithMemo() {
	status, envelope := s.deposit(3333, "50", "01012345678")
	require.Equal(s.T(), http.StatusCreated, status)
	assert.Equal(s.T(), "1150", dataField(envelope)["balance"])

	status, envelope = s.doRequest("GET", "/accounts/3333?page=0", s.users["mind"], nil)
	require.Equal(s.T(), http.StatusOK, status)
	transactions, _ := dataField(envelope)["transactions"].([]interface{})
	require.Len(s.T(), transactions, 2)
	row, _ := transactions[1].(map[string]interface{})
	assert.Equal(s.T(), "DEPOSIT", row["type"])
	assert.Equal(s.T(), "01012345678", row["memo"])
}

// stepConcurrentWithdrawals races two full withdrawals against one balance:
// exactly one may win and the final balance is zero, never negative.
func (s *IntegrationTestSuite) stepConcurrentWithdrawals() {
	s.registerUser("racer")
	status, _ := s.createAccount("racer", 7777, "100", withdrawPassword)
	require.Equal(s.T(), http.StatusCreated, status)

	statuses := make([]int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = s.withdraw("racer", 7777, withdrawPassword, "100")
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(s.T(), []int{http.StatusCreated, http.StatusUnprocessableEntity}, statuses)
	assert.Equal(s.T(), "0", s.accountBalance("racer", 7777))
}

// stepOppositeTransfers races transfers in both directions over the same
// account pair; ordered lock acquisition means neither may deadlock and both
// must finish, leaving the pair sum unchanged.
func (s *IntegrationTestSuite) stepOppositeTransfers() {
	s.registerUser("pingowner")
	s.registerUser("pongowner")
	status, _ := s.createAccount("pingowner", 8801, "500", withdrawPassword)
	require.Equal(s.T(), http.StatusCreated, status)
	status, _ = s.createAccount("pongowner", 8802, "500", withdrawPassword)
	require.Equal(s.T(), http.StatusCreated, status)

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		statuses[0], _ = s.transfer("pingowner", 8801, 8802, withdrawPassword, "100")
	}()
	go func() {
		defer wg.Done()
		statuses[1], _ = s.transfer("pongowner", 8802, 8801, withdrawPassword, "100")
	}()
	wg.Wait()

	assert.Equal(s.T(), []int{http.StatusCreated, http.StatusCreated}, statuses)
	assert.Equal(s.T(), "500", s.accountBalance("pingowner", 8801))
	assert.Equal(s.T(), "500", s.accountBalance("pongowner", 8802))
}

// stepLedgerImmutability checks the database itself refuses to rewrite
// history.
func (s *IntegrationTestSuite) stepLedgerImmutability() {
	db, err := sql.Open("postgres", s.dbConnStr)
	require.NoError(s.T(), err)
	defer db.Close()

	_, err = db.Exec(`UPDATE transactions SET amount = 1 WHERE id = 1`)
	assert.Error(s.T(), err)
	_, err = db.Exec(`DELETE FROM transactions WHERE id = 1`)
	assert.Error(s.T(), err)

	// Replaying 1111's full ledger reproduces its stored balance.
	var stored string
	require.NoError(s.T(), db.QueryRow(
		`SELECT balance::text FROM accounts WHERE number = 1111`).Scan(&stored))
	// Account 1111 opened with 1000; initial balance plus ledger delta
	// must equal the stored balance.
	var replayed string
	require.NoError(s.T(), db.QueryRow(`
		SELECT (1000 + COALESCE(SUM(
			CASE WHEN sender_number = 1111 THEN -amount ELSE amount END
		), 0))::text
		FROM transactions
		WHERE sender_number = 1111 OR receiver_number = 1111`).Scan(&replayed))
	assert.Equal(s.T(), stored, replayed)
}

func (s *IntegrationTestSuite) stepDeleteAccount() {
	// 1111 has ledger entries; the audit trail blocks deletion.
	status, envelope := s.doRequest("DELETE", "/accounts/1111", s.users["bank"], nil)
	assert.Equal(s.T(), http.StatusConflict, status)
	assert.Equal(s.T(), "account_has_history", errorCode(envelope))

	// Only the owner may delete.
	s.registerUser("closer")
	status, _ = s.createAccount("closer", 9911, "0", withdrawPassword)
	require.Equal(s.T(), http.StatusCreated, status)
	status, _ = s.doRequest("DELETE", "/accounts/9911", s.users["bank"], nil)
	assert.Equal(s.T(), http.StatusForbidden, status)

	// A history-free account deletes cleanly.
	status, _ = s.doRequest("DELETE", "/accounts/9911", s.users["closer"], nil)
	assert.Equal(s.T(), http.StatusOK, status)
	status, _ = s.doRequest("GET", "/accounts/9911", s.users["closer"], nil)
	assert.Equal(s.T(), http.StatusNotFound, status)
}

// TestFlow runs the steps in a deterministic order; later steps build on the
// state earlier ones created.
func (s *IntegrationTestSuite) TestFlow() {
	s.stepRegisterAndCreateAccounts()
	s.stepListOwnAccounts()
	s.stepDepositValidation()
	s.stepAuthorization()
	s.stepSelfTransferRejected()
	s.stepInsufficientFunds()
	s.stepHistoryScenario()
	s.stepDepositWithMemo()
	s.stepConcurrentWithdrawals()
	s.stepOppositeTransfers()
	s.stepLedgerImmutability()
	s.stepDeleteAccount()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
