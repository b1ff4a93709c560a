package webserver

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/utopian-io/utopian-api/src/api/steem"
	"github.com/utopian-io/utopian-api/src/api/types"
	"gorm.io/gorm"
)

type blockReader interface {
	GetBlock(ctx context.Context, num uint32) (*steem.Block, error)
}

type Escrow struct {
	db      *gorm.DB
	chain   blockReader
	publish func(c *gin.Context, payload map[string]interface{})
}

func NewEscrow(db *gorm.DB, chain blockReader, bounties Bounties) Escrow {
	return Escrow{
		db:    db,
		chain: chain,
		publish: func(c *gin.Context, payload map[string]interface{}) {
			bounties.publish(c, payload)
		},
	}
}

func steemAddress(db *gorm.DB, userID uint64) string {
	var account types.BlockchainAccount
	if err := db.First(&account, "user_id = ? AND blockchain = ?", userID, "steem").Error; err != nil {
		return ""
	}
	return account.Address
}

// Accounts returns the steem usernames of the escrow sender (the caller)
// and the receiver (the proposal author being assigned).
func (e Escrow) Accounts(c *gin.Context) {
	var req struct {
		ID uint64 `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	respond(c, http.StatusOK, gin.H{
		"sender":   steemAddress(e.db, userID(c)),
		"receiver": steemAddress(e.db, req.ID),
	})
}

// Assign verifies the claimed escrow transfer on chain and moves the
// bounty to inProgress with the contributor assigned.
func (e Escrow) Assign(c *gin.Context) {
	var req struct {
		ID          uint64 `json:"id" binding:"required"`
		EscrowID    uint64 `json:"escrowId" binding:"required"`
		From        string `json:"from" binding:"required"`
		To          string `json:"to" binding:"required"`
		Agent       string `json:"agent" binding:"required"`
		Assignee    uint64 `json:"assignee" binding:"required"`
		Transaction struct {
			Block uint32 `json:"block" binding:"required"`
			ID    string `json:"id" binding:"required"`
		} `json:"transaction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	author := userID(c)
	var bounty types.Bounty
	if err := e.db.Preload("Amounts").
		First(&bounty, "id = ? AND author_id = ?", req.ID, author).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}

	var assignedUser types.User
	if err := e.db.First(&assignedUser, req.Assignee).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}

	// A retry of an assignment that already committed with the same
	// escrow id is answered with the committed state.
	if bounty.Status == types.BountyInProgress &&
		bounty.EscrowID != nil && *bounty.EscrowID == req.EscrowID &&
		bounty.AssigneeID != nil && *bounty.AssigneeID == req.Assignee {
		respond(c, http.StatusOK, gin.H{
			"assignee": userProjection(&assignedUser),
			"status":   bounty.Status,
		})
		return
	}
	if bounty.Status != types.BountyOpen || bounty.AssigneeID != nil {
		clientError(c, http.StatusUnprocessableEntity, errBountyNotAvailable)
		return
	}

	principal := ""
	for _, a := range bounty.Amounts {
		if a.Currency == "sbd" {
			principal = a.Amount
			break
		}
	}
	if principal == "" {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}

	block, err := e.chain.GetBlock(c, req.Transaction.Block)
	if err != nil {
		log.Printf("get block %d: %v", req.Transaction.Block, err)
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}
	if err := steem.VerifyEscrowTransfer(block, req.Transaction.ID, steem.EscrowExpectation{
		From:      req.From,
		To:        req.To,
		Agent:     req.Agent,
		EscrowID:  req.EscrowID,
		Principal: principal,
	}); err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}

	// Single conditional update so two racing assignments cannot both
	// commit.
	res := e.db.Model(&types.Bounty{}).
		Where("id = ? AND author_id = ? AND status = ? AND assignee_id IS NULL",
			bounty.ID, author, types.BountyOpen).
		Updates(map[string]interface{}{
			"assignee_id":  req.Assignee,
			"status":       types.BountyInProgress,
			"escrow_id":    req.EscrowID,
			"escrow_from":  req.From,
			"escrow_to":    req.To,
			"escrow_agent": req.Agent,
		})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": res.Error.Error()})
		return
	}
	if res.RowsAffected != 1 {
		clientError(c, http.StatusUnprocessableEntity, errBountyNotAvailable)
		return
	}

	var activity gin.H
	entry, err := appendActivity(e.db, bounty.ID, author,
		"assign", "primary", "mdi-clipboard-account",
		map[string]interface{}{"assignee": assignedUser.Username})
	if err == nil {
		var authorUser types.User
		_ = e.db.First(&authorUser, author).Error
		activity = gin.H{
			"user":      userProjection(&authorUser),
			"key":       entry.Key,
			"color":     entry.Color,
			"icon":      entry.Icon,
			"data":      gin.H{"assignee": assignedUser.Username},
			"createdAt": entry.CreatedAt,
		}
	}

	e.publish(c, map[string]interface{}{
		"key":      "assign",
		"bounty":   bounty.ID,
		"slug":     bounty.Slug,
		"title":    bounty.Title,
		"user":     c.GetString("username"),
		"assignee": assignedUser.Username,
	})

	respond(c, http.StatusOK, gin.H{
		"activity": activity,
		"assignee": userProjection(&assignedUser),
		"status":   types.BountyInProgress,
	})
}
