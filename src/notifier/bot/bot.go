package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/utopian-io/utopian-api/src/api/data"
)

// Event is one activity stream entry, as published by the API.
type Event struct {
	Key      string
	Bounty   uint64
	Slug     string
	Title    string
	User     string
	Assignee string
	Time     int64
}

type Bot struct {
	session     *discordgo.Session
	rdb         *redis.Client
	channelID   string
	frontendURL string
}

func New(token, channelID, frontendURL string, rdb *redis.Client) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		session:     dg,
		rdb:         rdb,
		channelID:   channelID,
		frontendURL: frontendURL,
	}

	dg.AddHandler(b.handleReady)
	dg.Identify.Intents = discordgo.IntentsGuilds

	return b, nil
}

func (b *Bot) Start() error {
	return b.session.Open()
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("Discord bot logged in as %s", event.User.Username)
}

func parseEvent(values map[string]interface{}) Event {
	var e Event
	if key, ok := values["key"].(string); ok {
		e.Key = key
	}
	if idStr, ok := values["bounty"].(string); ok {
		if id, err := strconv.ParseUint(idStr, 10, 64); err == nil {
			e.Bounty = id
		}
	}
	if slug, ok := values["slug"].(string); ok {
		e.Slug = slug
	}
	if title, ok := values["title"].(string); ok {
		e.Title = title
	}
	if user, ok := values["user"].(string); ok {
		e.User = user
	}
	if assignee, ok := values["assignee"].(string); ok {
		e.Assignee = assignee
	}
	if timeStr, ok := values["time"].(string); ok {
		if t, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
			e.Time = t
		}
	}
	return e
}

// BuildEmbed formats one activity event as a Discord embed.
func (b *Bot) BuildEmbed(e Event) *discordgo.MessageEmbed {
	url := fmt.Sprintf("%s/bounty/%s", b.frontendURL, e.Slug)

	var header string
	var color int
	switch e.Key {
	case "bounty":
		header = fmt.Sprintf("New bounty by %s", e.User)
		color = 0x26a69a
	case "proposal":
		header = fmt.Sprintf("New proposal by %s", e.User)
		color = 0x0099ff
	case "assign":
		header = fmt.Sprintf("%s assigned %s", e.User, e.Assignee)
		color = 0xffa000
	default:
		header = fmt.Sprintf("Activity by %s", e.User)
		color = 0x9e9e9e
	}

	ts := e.Time
	if ts == 0 {
		ts = time.Now().Unix()
	}

	return &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name: header,
		},
		Title:     e.Title,
		URL:       url,
		Color:     color,
		Timestamp: time.Unix(ts, 0).Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Via Utopian | %s", e.Slug),
		},
	}
}

func (b *Bot) post(e Event) error {
	_, err := b.session.ChannelMessageSendEmbed(b.channelID, b.BuildEmbed(e))
	return err
}

// Listen consumes the activity stream and announces each event.
func (b *Bot) Listen(ctx context.Context) {
	lastID := "$"

	for {
		select {
		case <-ctx.Done():
			return
		default:
			streams, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{data.ActivityStream(), lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()

			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					log.Printf("read stream: %v", err)
				}
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					e := parseEvent(msg.Values)
					if err := b.post(e); err != nil {
						log.Printf("post to discord: %v", err)
					} else {
						log.Printf("announced %s for %s", e.Key, e.Slug)
					}
					lastID = msg.ID
				}
			}
		}
	}
}
