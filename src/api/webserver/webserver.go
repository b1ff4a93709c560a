package webserver

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/utopian-io/utopian-api/src/api/config"
	"github.com/utopian-io/utopian-api/src/api/security"
)

// Services bundles the blockchain-facing collaborators the handlers need.
type Services struct {
	Lookup   accountLookup
	Chain    blockReader
	Exchange tokenExchanger
	Creator  accountCreator
	Cipher   *security.Cipher
}

func New(cfg config.Config, db *gorm.DB, rdb *redis.Client, svc Services) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	attachRoutes(g, cfg, db, rdb, svc)
	return g
}
