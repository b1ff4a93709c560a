package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/utopian-io/utopian-api/src/api/config"
	"gorm.io/gorm"
)

func attachRoutes(r *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client, svc Services) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8080", cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// The limiter runs after the JWT middlewares so authenticated traffic
	// keys by username; anonymous routes key by client address.
	limiter := NewRateLimiter(cfg.RateLimit, time.Minute)
	limit := RateLimitMiddleware(limiter)

	secret := []byte(cfg.JWTSecret)

	blockchainH := NewBlockchains(db, svc.Lookup, svc.Exchange, svc.Creator, svc.Cipher)
	bountyH := NewBounties(db, rdb)
	proposalH := NewProposals(db, bountyH)
	escrowH := NewEscrow(db, svc.Chain, bountyH)

	v1 := r.Group("/v1")
	{
		v1.GET("/blockchains/steem/account/:username/available", limit, blockchainH.AccountAvailable)
		v1.GET("/bounties/:author/:slug", OptionalJWTMiddleware(secret), limit, bountyH.Get)
		v1.GET("/bounties/:author/:slug/proposals", limit, proposalH.List)
		v1.POST("/bounties/skills", limit, bountyH.SearchSkills)

		secured := v1.Use(JWTMiddleware(secret), limit)
		secured.PUT("/blockchains/steem/linkaccount", blockchainH.LinkAccount)
		secured.POST("/blockchains/steem/account", blockchainH.CreateAccount)
		secured.POST("/bounties", bountyH.Create)
		secured.PUT("/bounties/:id", bountyH.Update)
		secured.PUT("/bounties/:id/blockchains/:blockchain", bountyH.UpdateChainData)
		secured.GET("/bounties/:author/:slug/edit", bountyH.GetForEdit)
		secured.POST("/bounties/escrowaccounts", escrowH.Accounts)
		secured.POST("/bounties/assign", escrowH.Assign)
		secured.POST("/proposals", proposalH.Create)
		secured.PUT("/proposals/:id", proposalH.Update)
		secured.DELETE("/proposals/:id", proposalH.Delete)
	}
}
