package webserver

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/utopian-io/utopian-api/src/api/security"
	"github.com/utopian-io/utopian-api/src/api/steem"
	"github.com/utopian-io/utopian-api/src/api/types"
	"gorm.io/gorm"
)

// Same shape the account signup form enforces.
var usernameRe = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*$`)

func validSteemUsername(name string) bool {
	return len(name) >= 3 && len(name) <= 32 && usernameRe.MatchString(name)
}

type accountLookup interface {
	GetAccounts(ctx context.Context, names []string) ([]steem.Account, error)
}

type tokenExchanger interface {
	Exchange(ctx context.Context, code string) (*steem.Tokens, error)
}

type accountCreator interface {
	CreateClaimedAccount(ctx context.Context, username string, owner, active, posting steem.Authority, memoKey string) (string, error)
}

type Blockchains struct {
	db       *gorm.DB
	lookup   accountLookup
	exchange tokenExchanger
	creator  accountCreator
	cipher   *security.Cipher
}

func NewBlockchains(db *gorm.DB, lookup accountLookup, exchange tokenExchanger, creator accountCreator, cipher *security.Cipher) Blockchains {
	return Blockchains{db: db, lookup: lookup, exchange: exchange, creator: creator, cipher: cipher}
}

// LinkAccount exchanges a SteemConnect OAuth code and links the asserted
// username to the authenticated user.
func (b Blockchains) LinkAccount(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var user types.User
	err := b.db.Preload("BlockchainAccounts").
		First(&user, "username = ?", c.GetString("username")).Error
	if err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentMissing)
		return
	}

	tokens, err := b.exchange.Exchange(c, strings.TrimSpace(req.Code))
	if err != nil {
		log.Printf("steemconnect exchange: %v", err)
		clientError(c, http.StatusUnprocessableEntity, errDocumentMissing)
		return
	}

	for _, account := range user.BlockchainAccounts {
		if account.Blockchain == "steem" && account.Address == tokens.Username {
			clientError(c, http.StatusUnprocessableEntity, errAccountAlreadyLinked)
			return
		}
	}

	accessToken, err := b.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	refreshToken, err := b.cipher.Encrypt(tokens.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	// First linked account of any blockchain becomes the active one.
	link := types.BlockchainAccount{
		UserID:       user.ID,
		Blockchain:   "steem",
		Address:      tokens.Username,
		Active:       len(user.BlockchainAccounts) == 0,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	res := b.db.Create(&link)
	if res.Error != nil || res.RowsAffected != 1 {
		clientError(c, http.StatusUnprocessableEntity, errDocumentMissing)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"message":      "link-account-success",
		"username":     tokens.Username,
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

// AccountAvailable reports whether a username is free on chain.
func (b Blockchains) AccountAvailable(c *gin.Context) {
	username := strings.ToLower(strings.TrimSpace(c.Param("username")))
	if !validSteemUsername(username) {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid username"})
		return
	}

	accounts, err := b.lookup.GetAccounts(c, []string{username})
	if err != nil {
		log.Printf("get accounts: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"err": "blockchain unavailable"})
		return
	}

	respond(c, http.StatusOK, gin.H{"available": len(accounts) == 0})
}

// CreateAccount provisions a claimed on-chain account for the user. The
// created flag is persisted only once the broadcast reports inclusion.
func (b Blockchains) CreateAccount(c *gin.Context) {
	var req struct {
		Username    string          `json:"username" binding:"required"`
		OwnerAuth   steem.Authority `json:"ownerAuth" binding:"required"`
		ActiveAuth  steem.Authority `json:"activeAuth" binding:"required"`
		PostingAuth steem.Authority `json:"postingAuth" binding:"required"`
		MemoAuth    steem.Authority `json:"memoAuth" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !validSteemUsername(username) || len(req.MemoAuth.KeyAuths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid payload"})
		return
	}

	var user types.User
	if err := b.db.Preload("BlockchainAccounts").First(&user, "id = ?", userID(c)).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentMissing)
		return
	}
	if user.HasCreatedSteemAccount {
		clientError(c, http.StatusUnprocessableEntity, errSteemAccountCreated)
		return
	}

	txID, err := b.creator.CreateClaimedAccount(c, username,
		req.OwnerAuth, req.ActiveAuth, req.PostingAuth, req.MemoAuth.KeyAuths[0].Key)
	if err != nil {
		log.Printf("create claimed account %q: %v", username, err)
		clientError(c, http.StatusUnprocessableEntity, errCouldNotCreateAccount)
		return
	}

	err = b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&types.User{}).Where("id = ?", user.ID).
			Update("has_created_steem_account", true).Error; err != nil {
			return err
		}
		return tx.Create(&types.BlockchainAccount{
			UserID:     user.ID,
			Blockchain: "steem",
			Address:    username,
			Active:     len(user.BlockchainAccounts) == 0,
		}).Error
	})
	if err != nil {
		// The account exists on chain at this point; surface the
		// transaction anyway and let the record reconcile on retry.
		log.Printf("record created account %q: %v", username, err)
	}

	respond(c, http.StatusOK, gin.H{
		"message":     "account-created",
		"username":    username,
		"transaction": txID,
	})
}
