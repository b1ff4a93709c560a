package data

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/utopian-io/utopian-api/src/webclient"
)

const SBDUSDPair = "sbdusd"

// defaultQuoteURL matches the coingecko simple price shape below.
const defaultQuoteURL = "https://api.coingecko.com/api/v3/simple/price?ids=steem-dollars&vs_currencies=usd"

func fetchSBDUSD(ctx context.Context, url string) (float64, error) {
	client := webclient.NewDefault(30 * time.Second)
	status, body, err := webclient.DoWithRetry(ctx, 3, 2*time.Second, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		return resp.StatusCode, b, err
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, &webclient.StatusError{Status: status}
	}

	var out map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, err
	}
	for _, v := range out {
		return v.USD, nil
	}
	return 0, io.ErrUnexpectedEOF
}

// StartQuoteWatcher refreshes the SBD/USD rate into redis until ctx ends.
func StartQuoteWatcher(ctx context.Context, rdb *redis.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	refresh := func() {
		url := GetSetting("quote_url")
		if url == "" {
			url = defaultQuoteURL
		}
		rate, err := fetchSBDUSD(ctx, url)
		if err != nil {
			log.Printf("quote refresh: %v", err)
			return
		}
		if err := SetQuote(ctx, rdb, SBDUSDPair, rate); err != nil {
			log.Printf("quote cache: %v", err)
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
