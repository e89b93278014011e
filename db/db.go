// Package db provides the Postgres connection and schema migration for the
// chat transcript. The transcript is an operational log for moderation and
// debugging; the pipeline never reads it back into prompts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)
	return database, nil
}

// Migrate applies idempotent schema changes for the transcript table.
func Migrate(ctx context.Context, database *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			channel TEXT NOT NULL,
			user_id TEXT,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			badges TEXT,
			emotes TEXT,
			color TEXT,
			is_command BOOLEAN NOT NULL DEFAULT FALSE,
			sent_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_channel_sent_at ON chat_messages (channel, sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_username ON chat_messages (username)`,
	}
	for _, stmt := range stmts {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// InsertChatMessage records one chat line.
func InsertChatMessage(ctx context.Context, database *sql.DB, channel, userID, username, message, badges, emotes, color string, isCommand bool, sentAt time.Time) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO chat_messages (channel, user_id, username, message, badges, emotes, color, is_command, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		channel, userID, username, message, badges, emotes, color, isCommand, sentAt)
	return err
}
