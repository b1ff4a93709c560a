package webserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/utopian-io/utopian-api/src/api/security"
	"github.com/utopian-io/utopian-api/src/api/steem"
	"gorm.io/gorm"
)

type stubExchanger struct {
	tokens *steem.Tokens
	err    error
}

func (s stubExchanger) Exchange(ctx context.Context, code string) (*steem.Tokens, error) {
	return s.tokens, s.err
}

type stubCreator struct {
	txID     string
	err      error
	username string
}

func (s *stubCreator) CreateClaimedAccount(ctx context.Context, username string, owner, active, posting steem.Authority, memoKey string) (string, error) {
	s.username = username
	return s.txID, s.err
}

func testCipher(t *testing.T) *security.Cipher {
	t.Helper()
	c, err := security.NewCipher(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func blockchainsRouter(db *gorm.DB, exchange tokenExchanger, creator accountCreator, cipher *security.Cipher) *gin.Engine {
	b := NewBlockchains(db, nil, exchange, creator, cipher)
	r := gin.New()
	authed := func(c *gin.Context) {
		c.Set("uid", uint64(1))
		c.Set("username", "alice")
	}
	r.PUT("/linkaccount", authed, b.LinkAccount)
	r.POST("/account", authed, b.CreateAccount)
	return r
}

func putJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLinkAccountMissingUserKey(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := blockchainsRouter(db, stubExchanger{}, &stubCreator{}, testCipher(t))
	w := putJSON(t, r, "/linkaccount", `{"code":"oauth-code"}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	// the linker speaks the dash key, not the bounty module's dotted one
	if body := w.Body.String(); body != `{"err":"document-does-not-exist"}` {
		t.Fatalf("body = %s", body)
	}
}

func TestLinkAccountDuplicateKey(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(1, "alice"))
	mock.ExpectQuery("SELECT \\* FROM `blockchain_accounts`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "blockchain", "address"}).
			AddRow(1, 1, "steem", "alice-on-chain"))

	exchange := stubExchanger{tokens: &steem.Tokens{
		Username:    "alice-on-chain",
		AccessToken: "access",
	}}
	r := blockchainsRouter(db, exchange, &stubCreator{}, testCipher(t))
	w := putJSON(t, r, "/linkaccount", `{"code":"oauth-code"}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != `{"err":"account-already-linked"}` {
		t.Fatalf("body = %s", body)
	}
}

func TestCreateAccountAlreadyCreatedKey(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "has_created_steem_account"}).
			AddRow(1, "alice", true))
	mock.ExpectQuery("SELECT \\* FROM `blockchain_accounts`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := blockchainsRouter(db, stubExchanger{}, &stubCreator{}, testCipher(t))
	w := postJSON(t, r, "/account", createAccountPayload())

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != `{"err":"user-already-created-steem-account"}` {
		t.Fatalf("body = %s", body)
	}
}

func createAccountPayload() gin.H {
	key := steem.PrivateKeyFromLogin("newbie", "owner", "pw")
	auth := gin.H{
		"weight_threshold": 1,
		"account_auths":    []interface{}{},
		"key_auths":        []interface{}{[]interface{}{key.PublicString(steem.PrefixMainnet), 1}},
	}
	return gin.H{
		"username":    "Newbie",
		"ownerAuth":   auth,
		"activeAuth":  auth,
		"postingAuth": auth,
		"memoAuth":    auth,
	}
}

func TestCreateAccountPersistsFlagAfterBroadcast(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "has_created_steem_account"}).
			AddRow(1, "alice", false))
	mock.ExpectQuery("SELECT \\* FROM `blockchain_accounts`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `blockchain_accounts`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	creator := &stubCreator{txID: "txid123"}
	r := blockchainsRouter(db, stubExchanger{}, creator, testCipher(t))
	w := postJSON(t, r, "/account", createAccountPayload())

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if creator.username != "newbie" {
		t.Fatalf("creator got username %q", creator.username)
	}
	if body := w.Body.String(); !strings.Contains(body, `"transaction":"txid123"`) {
		t.Fatalf("body = %s", body)
	}
	// the created flag and the account row are written only after the
	// broadcast reported a transaction id
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAccountBroadcastFailureKey(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "has_created_steem_account"}).
			AddRow(1, "alice", false))
	mock.ExpectQuery("SELECT \\* FROM `blockchain_accounts`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	creator := &stubCreator{err: context.DeadlineExceeded}
	r := blockchainsRouter(db, stubExchanger{}, creator, testCipher(t))
	w := postJSON(t, r, "/account", createAccountPayload())

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != `{"err":"could-not-create-account"}` {
		t.Fatalf("body = %s", body)
	}
	// no write reaches the database on a failed broadcast
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
