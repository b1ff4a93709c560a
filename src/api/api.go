package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utopian-io/utopian-api/src/api/config"
	"github.com/utopian-io/utopian-api/src/api/data"
	"github.com/utopian-io/utopian-api/src/api/security"
	"github.com/utopian-io/utopian-api/src/api/steem"
	"github.com/utopian-io/utopian-api/src/api/types"
	"github.com/utopian-io/utopian-api/src/api/webserver"
	"gorm.io/gorm"
)

var allModels = []interface{}{
	&types.User{}, &types.BlockchainAccount{},
	&types.Category{}, &types.Setting{},
	&types.Bounty{}, &types.BountyAmount{}, &types.BountySlug{},
	&types.BountySkill{}, &types.BountyActivity{}, &types.BountyChain{},
	&types.Proposal{}, &types.Vote{},
}

func migrate(db *gorm.DB) {
	err := db.AutoMigrate(allModels...)

	if err == nil {
		return
	}

	log.Printf("auto-migrate failed (%v) - dropping & recreating schema", err)
	_ = db.Migrator().DropTable(
		"votes", "proposals",
		"bounty_chains", "bounty_activities", "bounty_skills",
		"bounty_slugs", "bounty_amounts", "bounties",
		"blockchain_accounts", "categories", "settings", "users",
	)
	if err := db.AutoMigrate(allModels...); err != nil {
		log.Fatalf("migrate after drop: %v", err)
	}
}

func seed(db *gorm.DB, cfg config.Config) {
	categories := []types.Category{
		{Key: "development", Name: "Development", Active: true},
		{Key: "bug-hunting", Name: "Bug Hunting", Active: true},
		{Key: "translations", Name: "Translations", Active: true},
		{Key: "graphics", Name: "Graphics", Active: true},
		{Key: "documentation", Name: "Documentation", Active: true},
		{Key: "analysis", Name: "Analysis", Active: true},
	}
	for _, cat := range categories {
		_ = db.FirstOrCreate(&types.Category{Key: cat.Key}, cat).Error
	}

	settings := []types.Setting{
		{Name: "quote_url", Value: "https://api.coingecko.com/api/v3/simple/price?ids=steem-dollars&vs_currencies=usd"},
		{Name: "frontend_url", Value: cfg.FrontendURL},
	}
	for _, s := range settings {
		_ = db.FirstOrCreate(&types.Setting{}, types.Setting{Name: s.Name}).Error
		db.Model(&types.Setting{}).Where("name = ? AND value = ''", s.Name).Update("value", s.Value)
	}
}

func main() {
	cfg := config.Load()

	db := data.MustMySQL(cfg.MySQLDSN)
	migrate(db)
	seed(db, cfg)

	if err := data.LoadSettings(db); err != nil {
		log.Printf("load settings: %v", err)
	}

	rdb := data.MustRedis(cfg.RedisURL)

	chain := steem.NewClient(cfg.SteemAPI)
	provisioner, err := steem.NewProvisioner(chain, steem.ProvisionerConfig{
		Testnet:         cfg.Testnet,
		Creator:         cfg.AccountCreator,
		CreatorWIF:      cfg.AccountCreatorKey,
		TestnetCreator:  cfg.AccountCreatorTestnet,
		TestnetPassword: cfg.AccountCreatorTestnetPassword,
	})
	if err != nil {
		log.Fatalf("provisioner: %v", err)
	}
	cipher, err := security.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("cipher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go data.StartQuoteWatcher(ctx, rdb, time.Duration(cfg.PollInterval)*time.Second)
	go data.StartSettingsWatcher(ctx, db, time.Duration(cfg.PollInterval)*time.Second)

	router := webserver.New(cfg, db, rdb, webserver.Services{
		Lookup:   chain,
		Chain:    chain,
		Exchange: steem.NewSteemConnect(cfg.SteemConnectURL, cfg.SteemConnectSecret),
		Creator:  provisioner,
		Cipher:   cipher,
	})
	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()
	log.Printf("Utopian API listening on %s", cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
