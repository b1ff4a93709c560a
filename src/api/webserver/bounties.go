package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/utopian-io/utopian-api/src/api/data"
	"github.com/utopian-io/utopian-api/src/api/steem"
	"github.com/utopian-io/utopian-api/src/api/types"
	"gorm.io/gorm"
)

// Last known SBD/USD rate, used when the quote cache is cold.
const sbdUSDFallback = 0.98281782

type Bounties struct {
	db        *gorm.DB
	rdb       *redis.Client
	sanitizer *bluemonday.Policy
	stripper  *bluemonday.Policy
}

func NewBounties(db *gorm.DB, rdb *redis.Client) Bounties {
	// Strict sanitizer for user supplied markdown/HTML bodies
	sanitizer := bluemonday.StrictPolicy()
	sanitizer.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	sanitizer.AllowElements("ul", "ol", "li")
	sanitizer.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	sanitizer.AllowAttrs("href").OnElements("a")
	sanitizer.RequireParseableURLs(true)
	sanitizer.AddTargetBlankToFullyQualifiedLinks(true)
	sanitizer.RequireNoFollowOnLinks(true)

	return Bounties{
		db:        db,
		rdb:       rdb,
		sanitizer: sanitizer,
		stripper:  bluemonday.StrictPolicy(),
	}
}

// detectLang returns the ISO 639-3 code of the body's text content.
func (b Bounties) detectLang(body string) string {
	text := strings.TrimSpace(b.stripper.Sanitize(body))
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6393()
}

// bountySlug builds the canonical {author}/{slugified-title} identifier.
func bountySlug(username, title string) string {
	return username + "/" + slug.Make(title)
}

// slugInUse reports whether another bounty of the author already answers
// to the slug, either as its canonical slug or a historical one.
func slugInUse(db *gorm.DB, authorID uint64, s string) (bool, error) {
	var n int64
	err := db.Model(&types.Bounty{}).
		Joins("LEFT JOIN bounty_slugs bs ON bs.bounty_id = bounties.id").
		Where("bounties.author_id = ? AND (bounties.slug = ? OR bs.slug = ?)", authorID, s, s).
		Count(&n).Error
	return n > 0, err
}

// findBountyBySlug resolves a bounty by canonical or historical slug,
// skipping soft-deleted ones.
func findBountyBySlug(db *gorm.DB, full string) (*types.Bounty, error) {
	var bounty types.Bounty
	err := db.
		Where("deleted_at IS NULL").
		Where("slug = ? OR id IN (?)", full,
			db.Model(&types.BountySlug{}).Select("bounty_id").Where("slug = ?", full)).
		First(&bounty).Error
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

type bountyPayload struct {
	Title    string      `json:"title" binding:"required,max=255"`
	Body     string      `json:"body" binding:"required,min=1,max=50000"`
	Amount   json.Number `json:"amount" binding:"required"`
	Category string      `json:"category" binding:"required"`
	Skills   []string    `json:"skills" binding:"max=10"`
	Issue    string      `json:"issue" binding:"max=512"`
	Deadline *time.Time  `json:"deadline"`
}

// categoryAvailable gates writes on an existing, active category.
func categoryAvailable(db *gorm.DB, key string) (bool, error) {
	var n int64
	err := db.Model(&types.Category{}).Where("`key` = ? AND active = ?", key, true).Count(&n).Error
	return n > 0, err
}

func (b Bounties) publish(ctx context.Context, payload map[string]interface{}) {
	if b.rdb == nil {
		return
	}
	if err := data.PublishActivity(ctx, b.rdb, payload); err != nil {
		// best effort, the write already committed
		log.Printf("publish activity: %v", err)
	}
}

// Create stores a new bounty under a unique slug.
func (b Bounties) Create(c *gin.Context) {
	var req bountyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	amountMillis, _, err := steem.ParseAmountMillis(req.Amount.String())
	if err != nil || amountMillis <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid amount"})
		return
	}

	ok, err := categoryAvailable(b.db, req.Category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if !ok {
		clientError(c, http.StatusUnprocessableEntity, errCategoryNotAvailable)
		return
	}

	author := userID(c)
	username := c.GetString("username")

	s := bountySlug(username, req.Title)
	used, err := slugInUse(b.db, author, s)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if used {
		s = fmt.Sprintf("%s-%d", s, time.Now().UnixMilli())
	}

	body := b.sanitizer.Sanitize(req.Body)
	bounty := types.Bounty{
		AuthorID: author,
		Title:    req.Title,
		Body:     body,
		Lang:     b.detectLang(body),
		Category: req.Category,
		Status:   types.BountyOpen,
		Slug:     s,
		Issue:    req.Issue,
		Deadline: req.Deadline,
	}

	err = b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&bounty).Error; err != nil {
			return err
		}
		if err := tx.Create(&types.BountyAmount{
			BountyID: bounty.ID,
			Amount:   steem.FormatMillis(amountMillis),
			Currency: "sbd",
		}).Error; err != nil {
			return err
		}
		for _, skill := range req.Skills {
			if err := tx.Create(&types.BountySkill{BountyID: bounty.ID, Skill: skill}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	b.publish(c, map[string]interface{}{
		"key":    "bounty",
		"bounty": bounty.ID,
		"slug":   bounty.Slug,
		"title":  bounty.Title,
		"user":   username,
		"time":   bounty.CreatedAt.Unix(),
	})

	respond(c, http.StatusCreated, gin.H{
		"id":       bounty.ID,
		"body":     bounty.Body,
		"category": bounty.Category,
		"skills":   req.Skills,
		"slug":     bounty.Slug,
		"title":    bounty.Title,
	})
}

// Update rewrites a bounty's data, archiving the previous slug when the
// title changed.
func (b Bounties) Update(c *gin.Context) {
	var req bountyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	author := userID(c)
	username := c.GetString("username")

	var bounty types.Bounty
	if err := b.db.Preload("Slugs").
		First(&bounty, "id = ? AND author_id = ?", c.Param("id"), author).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}

	amountMillis, _, err := steem.ParseAmountMillis(req.Amount.String())
	if err != nil || amountMillis <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid amount"})
		return
	}

	ok, err := categoryAvailable(b.db, req.Category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if !ok {
		clientError(c, http.StatusUnprocessableEntity, errCategoryNotAvailable)
		return
	}

	inHistory := func(s string) bool {
		for _, h := range bounty.Slugs {
			if h.Slug == s {
				return true
			}
		}
		return false
	}

	newSlug := bountySlug(username, req.Title)
	archive := false
	if newSlug != bounty.Slug {
		if !inHistory(newSlug) {
			used, err := slugInUse(b.db, author, newSlug)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
				return
			}
			if used {
				newSlug = fmt.Sprintf("%s-%d", newSlug, time.Now().UnixMilli())
			}
		}
		// previous slug stays resolvable, recorded exactly once
		archive = !inHistory(bounty.Slug)
	}

	body := b.sanitizer.Sanitize(req.Body)
	previous := bounty.Slug
	err = b.db.Transaction(func(tx *gorm.DB) error {
		if archive {
			if err := tx.Create(&types.BountySlug{BountyID: bounty.ID, Slug: previous}).Error; err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"title":    req.Title,
			"body":     body,
			"lang":     b.detectLang(body),
			"category": req.Category,
			"slug":     newSlug,
			"issue":    req.Issue,
			"deadline": req.Deadline,
		}
		if err := tx.Model(&types.Bounty{}).
			Where("id = ? AND author_id = ?", bounty.ID, author).
			Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("bounty_id = ?", bounty.ID).Delete(&types.BountyAmount{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&types.BountyAmount{
			BountyID: bounty.ID,
			Amount:   steem.FormatMillis(amountMillis),
			Currency: "sbd",
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("bounty_id = ?", bounty.ID).Delete(&types.BountySkill{}).Error; err != nil {
			return err
		}
		for _, skill := range req.Skills {
			if err := tx.Create(&types.BountySkill{BountyID: bounty.ID, Skill: skill}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		clientError(c, http.StatusUnprocessableEntity, errUpdateFail)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"id":       bounty.ID,
		"body":     body,
		"category": req.Category,
		"skills":   req.Skills,
		"slug":     newSlug,
		"title":    req.Title,
	})
}

func userProjection(u *types.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{"username": u.Username, "avatarUrl": u.AvatarURL}
}

// Get returns a bounty by author and slug, resolving historical slugs.
func (b Bounties) Get(c *gin.Context) {
	full := c.Param("author") + "/" + c.Param("slug")
	bounty, err := findBountyBySlug(b.db, full)
	if err != nil {
		respond(c, http.StatusOK, nil)
		return
	}
	if err := b.db.Preload("Author").Preload("Assignee").
		Preload("Amounts").Preload("Skills").
		Preload("Activity").Preload("Activity.User").
		First(bounty, bounty.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	amounts := make([]gin.H, 0, len(bounty.Amounts))
	for _, a := range bounty.Amounts {
		amounts = append(amounts, gin.H{"amount": a.Amount, "currency": a.Currency})
	}
	skills := make([]string, 0, len(bounty.Skills))
	for _, s := range bounty.Skills {
		skills = append(skills, s.Skill)
	}
	activity := make([]gin.H, 0, len(bounty.Activity))
	for _, a := range bounty.Activity {
		var payload interface{}
		if a.Data != "" {
			_ = json.Unmarshal([]byte(a.Data), &payload)
		}
		activity = append(activity, gin.H{
			"user":      userProjection(&a.User),
			"key":       a.Key,
			"color":     a.Color,
			"icon":      a.Icon,
			"data":      payload,
			"createdAt": a.CreatedAt,
		})
	}

	out := gin.H{
		"id":       bounty.ID,
		"title":    bounty.Title,
		"body":     bounty.Body,
		"category": bounty.Category,
		"status":   bounty.Status,
		"slug":     bounty.Slug,
		"issue":    bounty.Issue,
		"deadline": bounty.Deadline,
		"amount":   amounts,
		"skills":   skills,
		"activity": activity,
		"author": gin.H{
			"username":   bounty.Author.Username,
			"avatarUrl":  bounty.Author.AvatarURL,
			"job":        bounty.Author.Job,
			"reputation": bounty.Author.Reputation,
		},
		"assignee": userProjection(bounty.Assignee),
	}

	if uid := userID(c); uid != 0 {
		var vote types.Vote
		if err := b.db.First(&vote,
			"obj_ref = ? AND obj_id = ? AND user_id = ?", "bounties", bounty.ID, uid).Error; err == nil {
			out["userVote"] = vote.Dir
		}
		var n int64
		b.db.Model(&types.Proposal{}).
			Where("author_id = ? AND bounty_id = ?", uid, bounty.ID).Count(&n)
		if n > 0 {
			out["userProposal"] = true
		}
	}

	rate, err := data.GetQuote(c, b.rdb, data.SBDUSDPair)
	if err != nil {
		rate = sbdUSDFallback
	}
	out["quotes"] = gin.H{"SBDUSD": rate}

	respond(c, http.StatusOK, out)
}

// GetForEdit returns the owner's editable projection.
func (b Bounties) GetForEdit(c *gin.Context) {
	full := c.Param("author") + "/" + c.Param("slug")
	bounty, err := findBountyBySlug(b.db, full)
	if err != nil {
		respond(c, http.StatusOK, nil)
		return
	}
	if bounty.AuthorID != userID(c) {
		clientError(c, http.StatusUnauthorized, errUnauthorized)
		return
	}
	if err := b.db.Preload("Amounts").Preload("Skills").Preload("Blockchains").
		Preload("Assignee").First(bounty, bounty.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	amounts := make([]gin.H, 0, len(bounty.Amounts))
	for _, a := range bounty.Amounts {
		amounts = append(amounts, gin.H{"amount": a.Amount, "currency": a.Currency})
	}
	skills := make([]string, 0, len(bounty.Skills))
	for _, s := range bounty.Skills {
		skills = append(skills, s.Skill)
	}
	chains := make([]gin.H, 0, len(bounty.Blockchains))
	for _, bc := range bounty.Blockchains {
		var payload interface{}
		if bc.Data != "" {
			_ = json.Unmarshal([]byte(bc.Data), &payload)
		}
		chains = append(chains, gin.H{"name": bc.Name, "data": payload, "updatedAt": bc.UpdatedAt})
	}

	respond(c, http.StatusOK, gin.H{
		"id":          bounty.ID,
		"title":       bounty.Title,
		"body":        bounty.Body,
		"category":    bounty.Category,
		"status":      bounty.Status,
		"issue":       bounty.Issue,
		"deadline":    bounty.Deadline,
		"amount":      amounts,
		"skills":      skills,
		"assignee":    userProjection(bounty.Assignee),
		"blockchains": chains,
	})
}

// UpdateChainData upserts the publication data of one blockchain by name.
func (b Bounties) UpdateChainData(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var bounty types.Bounty
	if err := b.db.First(&bounty, "id = ? AND author_id = ?", c.Param("id"), userID(c)).Error; err != nil {
		clientError(c, http.StatusUnprocessableEntity, errDocumentDoesNotExist)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	name := c.Param("blockchain")
	var chain types.BountyChain
	err = b.db.First(&chain, "bounty_id = ? AND name = ?", bounty.ID, name).Error
	switch {
	case err == nil:
		err = b.db.Model(&chain).Updates(map[string]interface{}{
			"data":       string(raw),
			"updated_at": time.Now(),
		}).Error
	case err == gorm.ErrRecordNotFound:
		err = b.db.Create(&types.BountyChain{
			BountyID:  bounty.ID,
			Name:      name,
			Data:      string(raw),
			UpdatedAt: time.Now(),
		}).Error
	}
	if err != nil {
		clientError(c, http.StatusUnprocessableEntity, errUpdateFail)
		return
	}

	var chains []types.BountyChain
	b.db.Where("bounty_id = ?", bounty.ID).Find(&chains)
	out := make([]gin.H, 0, len(chains))
	for _, bc := range chains {
		var payload interface{}
		if bc.Data != "" {
			_ = json.Unmarshal([]byte(bc.Data), &payload)
		}
		out = append(out, gin.H{"name": bc.Name, "data": payload, "updatedAt": bc.UpdatedAt})
	}
	respond(c, http.StatusOK, out)
}

// SearchSkills ranks skills matching a prefix by occurrence, skipping the
// ones the caller already picked.
func (b Bounties) SearchSkills(c *gin.Context) {
	var req struct {
		Partial string   `json:"partial" binding:"required,min=1,max=64"`
		Skills  []string `json:"skills" binding:"max=10"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	type row struct {
		Name        string `json:"name"`
		Occurrences int64  `json:"occurrences"`
	}
	q := b.db.Model(&types.BountySkill{}).
		Select("skill AS name, COUNT(*) AS occurrences").
		Where("skill LIKE ?", strings.ReplaceAll(req.Partial, "%", "")+"%")
	if len(req.Skills) > 0 {
		q = q.Where("skill NOT IN ?", req.Skills)
	}
	var rows []row
	if err := q.Group("skill").
		Order("occurrences DESC, name ASC").
		Limit(10).
		Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	respond(c, http.StatusOK, rows)
}
