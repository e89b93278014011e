package chat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/revulate/lunabot/config"
	"github.com/revulate/lunabot/db"
	"github.com/revulate/lunabot/pipeline"
	"github.com/revulate/lunabot/telemetry"
)

// Start connects the bot to Twitch IRC and blocks until the context is
// canceled. Each qualifying command is dispatched to the pipeline on its own
// goroutine so a slow upstream call never stalls the read loop. Replies are
// best-effort: one send attempt per chunk, no redelivery.
func Start(ctx context.Context, cfg *config.Config, database *sql.DB, p *pipeline.Pipeline) error {
	if err := cfg.ValidateChatReady(); err != nil {
		return err
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
	channel := cfg.TwitchChannel
	prefix := strings.ToLower(cfg.CommandPrefix)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		sentAt := time.Now().UTC()
		isCommand := strings.HasPrefix(strings.ToLower(strings.TrimSpace(msg.Message)), prefix)

		if database != nil {
			go recordMessage(ctx, database, channel, msg, isCommand, sentAt)
		}
		if !isCommand {
			return
		}

		go func() {
			reply := p.HandleCommand(ctx, msg.User.Name, channel, msg.Message)
			mention := "@" + msg.User.Name + ", "
			for _, chunk := range pipeline.SplitMessage(reply, pipeline.MaxMessageLength-len(mention)) {
				client.Say(channel, mention+chunk)
			}
		}()
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(channel)
	slog.Info("chat bot connecting", slog.String("channel", channel), slog.String("prefix", cfg.CommandPrefix))
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	<-done
	return nil
}

// recordMessage appends one chat line to the transcript. Failures are
// counted and logged, never surfaced to chat.
func recordMessage(ctx context.Context, database *sql.DB, channel string, msg twitch.PrivateMessage, isCommand bool, sentAt time.Time) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var badges strings.Builder
	for k, v := range msg.User.Badges {
		fmt.Fprintf(&badges, "%s:%d,", k, v)
	}
	var emotes strings.Builder
	for _, e := range msg.Emotes {
		emotes.WriteString(e.Name)
		emotes.WriteString(",")
	}

	err := db.InsertChatMessage(ctx, database, channel, msg.User.ID, msg.User.Name, msg.Message,
		strings.TrimSuffix(badges.String(), ","), strings.TrimSuffix(emotes.String(), ","),
		msg.User.Color, isCommand, sentAt)
	if err != nil {
		if telemetry.TranscriptFailures != nil {
			telemetry.TranscriptFailures.Inc()
		}
		slog.Error("failed to insert chat message", slog.Any("err", err))
	}
}
