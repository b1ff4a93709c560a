package data

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/utopian-io/utopian-api/src/api/types"
	"gorm.io/gorm"
)

// Settings (quote source, front-end URL) live in the settings table, are
// read on hot paths and change rarely, so they are cached in-process and
// reloaded on a timer.
var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings fills the cache at boot.
func LoadSettings(db *gorm.DB) error {
	return RefreshSettings(db)
}

// GetSetting returns the cached value, empty when unset.
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}

// RefreshSettings swaps in a freshly loaded cache.
func RefreshSettings(db *gorm.DB) error {
	var settings []types.Setting
	if err := db.Find(&settings).Error; err != nil {
		return err
	}

	next := make(map[string]string, len(settings))
	for _, s := range settings {
		next[s.Name] = s.Value
	}

	settingsMu.Lock()
	settingsCache = next
	settingsMu.Unlock()
	return nil
}

// StartSettingsWatcher reloads the settings cache until ctx ends, so edits
// to the table reach running instances without a restart.
func StartSettingsWatcher(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := RefreshSettings(db); err != nil {
				log.Printf("settings refresh: %v", err)
			}
		}
	}
}
