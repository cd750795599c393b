package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            first_name TEXT NOT NULL DEFAULT '',
            middle_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS user_connections (
            id BIGSERIAL PRIMARY KEY,
            sender_id BIGINT NOT NULL REFERENCES users(id),
            receiver_id BIGINT NOT NULL REFERENCES users(id),
            blocked_by_user_id BIGINT,
            status TEXT NOT NULL,
            created_on TIMESTAMPTZ DEFAULT NOW(),
            updated_on TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(sender_id, receiver_id)
        );`,
		`CREATE TABLE IF NOT EXISTS groups (
            id BIGSERIAL PRIMARY KEY,
            group_name TEXT NOT NULL,
            created_by BIGINT NOT NULL REFERENCES users(id),
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS group_members (
            id BIGSERIAL PRIMARY KEY,
            group_id BIGINT NOT NULL REFERENCES groups(id),
            user_id BIGINT NOT NULL REFERENCES users(id),
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            joined_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(group_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            chat_id TEXT NOT NULL,
            sender_id BIGINT NOT NULL REFERENCES users(id),
            recipient_id BIGINT REFERENCES users(id),
            group_id BIGINT REFERENCES groups(id),
            type TEXT NOT NULL DEFAULT 'TEXT',
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            CHECK ((recipient_id IS NULL) <> (group_id IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_connections_pair ON user_connections (receiver_id, sender_id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
