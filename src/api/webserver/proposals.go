package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/utopian-io/utopian-api/src/api/types"
	"gorm.io/gorm"
)

type Proposals struct {
	db        *gorm.DB
	sanitizer *bluemonday.Policy
	publish   func(c *gin.Context, payload map[string]interface{})
}

func NewProposals(db *gorm.DB, bounties Bounties) Proposals {
	return Proposals{
		db:        db,
		sanitizer: bounties.sanitizer,
		publish: func(c *gin.Context, payload map[string]interface{}) {
			bounties.publish(c, payload)
		},
	}
}

// appendActivity records one feed entry on the bounty.
func appendActivity(db *gorm.DB, bountyID, userID uint64, key, color, icon string, data map[string]interface{}) (*types.BountyActivity, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	entry := types.BountyActivity{
		BountyID:  bountyID,
		UserID:    userID,
		Key:       key,
		Color:     color,
		Icon:      icon,
		Data:      string(raw),
		CreatedAt: time.Now(),
	}
	if err := db.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// hasActivity reports whether the user already logged this activity kind
// on the bounty, the feed dedup rule.
func hasActivity(db *gorm.DB, bountyID, userID uint64, key string) (bool, error) {
	var n int64
	err := db.Model(&types.BountyActivity{}).
		Where("bounty_id = ? AND user_id = ? AND `key` = ?", bountyID, userID, key).
		Count(&n).Error
	return n > 0, err
}

// Create stores the author's single proposal against an open bounty.
func (p Proposals) Create(c *gin.Context) {
	var req struct {
		Bounty uint64 `json:"bounty" binding:"required"`
		Body   string `json:"body" binding:"required,min=1,max=50000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	author := userID(c)

	var n int64
	if err := p.db.Model(&types.Proposal{}).
		Where("author_id = ? AND bounty_id = ?", author, req.Bounty).
		Count(&n).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if n > 0 {
		clientError(c, http.StatusUnprocessableEntity, errProposalExists)
		return
	}

	var bounty types.Bounty
	if err := p.db.First(&bounty, "id = ?", req.Bounty).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}
	if bounty.Status != types.BountyOpen {
		clientError(c, http.StatusUnprocessableEntity, errBountyNotAvailable)
		return
	}

	proposal := types.Proposal{
		AuthorID: author,
		BountyID: bounty.ID,
		Body:     p.sanitizer.Sanitize(req.Body),
	}
	if err := p.db.Create(&proposal).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	var user types.User
	_ = p.db.First(&user, proposal.AuthorID).Error

	// One proposal activity entry per distinct author
	var activity gin.H
	logged, err := hasActivity(p.db, bounty.ID, author, "proposal")
	if err == nil && !logged {
		entry, err := appendActivity(p.db, bounty.ID, author,
			"proposal", "primary", "mdi-file-document", map[string]interface{}{})
		if err == nil {
			activity = gin.H{
				"user":      userProjection(&user),
				"key":       entry.Key,
				"color":     entry.Color,
				"icon":      entry.Icon,
				"data":      gin.H{},
				"createdAt": entry.CreatedAt,
			}
		}
	}

	p.publish(c, map[string]interface{}{
		"key":    "proposal",
		"bounty": bounty.ID,
		"slug":   bounty.Slug,
		"title":  bounty.Title,
		"user":   user.Username,
		"time":   proposal.CreatedAt.Unix(),
	})

	respond(c, http.StatusCreated, gin.H{
		"proposal": gin.H{
			"id":        proposal.ID,
			"author":    userProjection(&user),
			"body":      proposal.Body,
			"createdAt": proposal.CreatedAt,
		},
		"activity": activity,
	})
}

// Update rewrites a proposal while the bounty is unassigned.
func (p Proposals) Update(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required,min=1,max=50000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	author := userID(c)
	proposal, bounty, ok := p.ownedProposal(c, author)
	if !ok {
		return
	}
	if bounty.AssigneeID != nil {
		clientError(c, http.StatusUnprocessableEntity, errBountyNotAvailable)
		return
	}

	body := p.sanitizer.Sanitize(req.Body)
	res := p.db.Model(&types.Proposal{}).
		Where("id = ? AND author_id = ?", proposal.ID, author).
		Updates(map[string]interface{}{"body": body, "updated_at": time.Now()})
	if res.Error != nil || res.RowsAffected != 1 {
		clientError(c, http.StatusUnprocessableEntity, errUpdateFail)
		return
	}

	var user types.User
	_ = p.db.First(&user, author).Error
	respond(c, http.StatusOK, gin.H{
		"id":        proposal.ID,
		"author":    userProjection(&user),
		"body":      body,
		"createdAt": proposal.CreatedAt,
	})
}

// Delete removes a proposal while the bounty is unassigned.
func (p Proposals) Delete(c *gin.Context) {
	author := userID(c)
	proposal, bounty, ok := p.ownedProposal(c, author)
	if !ok {
		return
	}
	if bounty.AssigneeID != nil {
		clientError(c, http.StatusUnprocessableEntity, errBountyNotAvailable)
		return
	}

	res := p.db.Where("id = ? AND author_id = ?", proposal.ID, author).Delete(&types.Proposal{})
	if res.Error != nil || res.RowsAffected != 1 {
		clientError(c, http.StatusUnprocessableEntity, errDeleteFail)
		return
	}

	respond(c, http.StatusOK, true)
}

func (p Proposals) ownedProposal(c *gin.Context, author uint64) (*types.Proposal, *types.Bounty, bool) {
	var proposal types.Proposal
	if err := p.db.First(&proposal, "id = ? AND author_id = ?", c.Param("id"), author).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return nil, nil, false
	}
	var bounty types.Bounty
	if err := p.db.First(&bounty, proposal.BountyID).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return nil, nil, false
	}
	return &proposal, &bounty, true
}

// List pages a bounty's proposals, oldest first. The total is computed on
// the first page only.
func (p Proposals) List(c *gin.Context) {
	full := c.Param("author") + "/" + c.Param("slug")
	bounty, err := findBountyBySlug(p.db, full)
	if err != nil {
		clientError(c, http.StatusNotFound, errDocumentDoesNotExist)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}

	total := int64(-1)
	if skip == 0 {
		if err := p.db.Model(&types.Proposal{}).
			Where("bounty_id = ?", bounty.ID).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
	}

	var proposals []types.Proposal
	if err := p.db.Preload("Author").
		Where("bounty_id = ?", bounty.ID).
		Order("created_at asc").
		Limit(limit).Offset(skip).
		Find(&proposals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(proposals))
	for _, proposal := range proposals {
		out = append(out, gin.H{
			"id":        proposal.ID,
			"author":    userProjection(&proposal.Author),
			"body":      proposal.Body,
			"createdAt": proposal.CreatedAt,
		})
	}

	respond(c, http.StatusOK, gin.H{
		"proposals": out,
		"total":     total,
	})
}
