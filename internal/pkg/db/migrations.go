package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

// Migrations are applied in order on every start. Each statement is idempotent.
var migrations = []migration{
	{
		name: "avatars table created",
		sql: `
		CREATE TABLE IF NOT EXISTS avatars (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			is_premium BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	},
	{
		name: "profiles table created",
		sql: `
		CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT UNIQUE,
			password_hash TEXT,
			username TEXT NOT NULL UNIQUE,
			avatar_id TEXT,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			telegram_id BIGINT UNIQUE,
			xp BIGINT NOT NULL DEFAULT 0 CHECK (xp >= 0),
			credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
			streak INT NOT NULL DEFAULT 0 CHECK (streak >= 0),
			highest_streak INT NOT NULL DEFAULT 0,
			lives INT NOT NULL DEFAULT 5,
			max_lives INT NOT NULL DEFAULT 5 CHECK (max_lives > 0),
			last_refill_at TIMESTAMPTZ,
			unlocked_provinces JSONB NOT NULL DEFAULT '[]',
			province_scores JSONB NOT NULL DEFAULT '{}',
			earned_badges JSONB NOT NULL DEFAULT '[]',
			last_login_date DATE,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (lives >= 0 AND lives <= max_lives)
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_xp ON profiles(xp DESC);`,
	},
	{
		name: "oauth_identities table created",
		sql: `
		CREATE TABLE IF NOT EXISTS oauth_identities (
			provider TEXT NOT NULL,
			subject TEXT NOT NULL,
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (provider, subject)
		);`,
	},
	{
		name: "sessions and telegram_link_codes tables created",
		sql: `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
		CREATE TABLE IF NOT EXISTS telegram_link_codes (
			code TEXT PRIMARY KEY,
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL
		);`,
	},
	{
		name: "missions and mission_questions tables created",
		sql: `
		CREATE TABLE IF NOT EXISTS missions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			xp_reward BIGINT NOT NULL DEFAULT 0 CHECK (xp_reward >= 0),
			credit_reward BIGINT NOT NULL DEFAULT 0 CHECK (credit_reward >= 0),
			estimated_time INT NOT NULL DEFAULT 0,
			region TEXT,
			province_id TEXT,
			level INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_missions_province ON missions(province_id);
		CREATE INDEX IF NOT EXISTS idx_missions_region ON missions(region);
		CREATE TABLE IF NOT EXISTS mission_questions (
			id BIGSERIAL PRIMARY KEY,
			mission_id UUID NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			position INT NOT NULL,
			text TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'multiple_choice',
			options JSONB NOT NULL DEFAULT '[]',
			correct_answer_index INT NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			UNIQUE (mission_id, position)
		);`,
	},
	{
		name: "badges table created",
		sql: `
		CREATE TABLE IF NOT EXISTS badges (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			xp_reward BIGINT NOT NULL DEFAULT 0,
			rarity TEXT NOT NULL DEFAULT 'common',
			condition_type TEXT NOT NULL,
			condition_value TEXT NOT NULL
		);`,
	},
	{
		name: "shop_items and mystery_box_loot tables created",
		sql: `
		CREATE TABLE IF NOT EXISTS shop_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			cost BIGINT NOT NULL CHECK (cost >= 0),
			type TEXT NOT NULL DEFAULT 'consumable',
			rarity TEXT NOT NULL DEFAULT 'common',
			stock INT CHECK (stock IS NULL OR stock >= 0),
			is_limited BOOLEAN NOT NULL DEFAULT FALSE,
			effect_type TEXT NOT NULL DEFAULT 'none',
			effect_value BIGINT NOT NULL DEFAULT 0,
			label TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS mystery_box_loot (
			id BIGSERIAL PRIMARY KEY,
			box_id UUID NOT NULL REFERENCES shop_items(id) ON DELETE CASCADE,
			reward_type TEXT NOT NULL,
			reward_value BIGINT NOT NULL DEFAULT 0,
			item_id UUID REFERENCES shop_items(id) ON DELETE SET NULL,
			weight INT NOT NULL CHECK (weight > 0),
			description TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_loot_box ON mystery_box_loot(box_id);`,
	},
	{
		name: "user_items and user_avatars tables created",
		sql: `
		CREATE TABLE IF NOT EXISTS user_items (
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			item_id UUID NOT NULL REFERENCES shop_items(id) ON DELETE CASCADE,
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (profile_id, item_id)
		);
		CREATE TABLE IF NOT EXISTS user_avatars (
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			avatar_id TEXT NOT NULL REFERENCES avatars(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (profile_id, avatar_id)
		);`,
	},
	{
		name: "friends and gifts tables created",
		sql: `
		CREATE TABLE IF NOT EXISTS friends (
			requester_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			addressee_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (requester_id, addressee_id),
			CHECK (requester_id <> addressee_id)
		);
		CREATE TABLE IF NOT EXISTS gifts (
			id BIGSERIAL PRIMARY KEY,
			sender_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
			recipient_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			gift_type TEXT NOT NULL,
			amount BIGINT NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			item_id UUID REFERENCES shop_items(id) ON DELETE SET NULL,
			icon_url TEXT NOT NULL DEFAULT '',
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_gifts_recipient ON gifts(recipient_id, claimed_at);`,
	},
	{
		name: "feedback, transactions and mission_attempts tables created",
		sql: `
		CREATE TABLE IF NOT EXISTS feedback (
			id BIGSERIAL PRIMARY KEY,
			profile_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			rating INT CHECK (rating IS NULL OR (rating BETWEEN 1 AND 5)),
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_profile_time ON transactions(profile_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
		CREATE TABLE IF NOT EXISTS mission_attempts (
			id BIGSERIAL PRIMARY KEY,
			profile_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			mission_id UUID NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			score INT NOT NULL,
			max_score INT NOT NULL,
			passed BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_time ON mission_attempts(created_at DESC);`,
	},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, conn DBTX) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := conn.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Msgf("Migration %d: %s", i+1, m.name)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
