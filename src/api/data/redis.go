package data

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	quoteKey       = "quote:"
	streamActivity = "utopian.activity"
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// SetQuote caches a currency pair rate. Rates go stale after an hour so a
// dead quote source falls back to the compiled default.
func SetQuote(ctx context.Context, rdb *redis.Client, pair string, rate float64) error {
	return rdb.Set(ctx, quoteKey+pair, strconv.FormatFloat(rate, 'f', -1, 64), time.Hour).Err()
}

func GetQuote(ctx context.Context, rdb *redis.Client, pair string) (float64, error) {
	v, err := rdb.Get(ctx, quoteKey+pair).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}

// PublishActivity pushes a bounty activity event onto the stream the
// notifier consumes.
func PublishActivity(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamActivity,
		Values: payload,
	}).Result()
	return err
}

// ActivityStream is exported for the notifier's XRead loop.
func ActivityStream() string { return streamActivity }
