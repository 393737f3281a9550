package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

const profileColumns = `
	id, email, password_hash, username, avatar_id, is_admin, telegram_id,
	xp, credits, streak, highest_streak, lives, max_lives, last_refill_at,
	unlocked_provinces, province_scores, earned_badges, last_login_date, version,
	created_at, updated_at`

// NewProfile holds the fields needed to create an account.
type NewProfile struct {
	Email            *string
	PasswordHash     *string
	Username         string
	StarterProvinces []string
	MaxLives         int
	StartingCredits  int64
	IsAdmin          bool
}

// ProfileRepository handles profile and progress persistence.
type ProfileRepository struct {
	db db.DBTX
}

// NewProfileRepository creates a new ProfileRepository instance.
func NewProfileRepository(conn db.DBTX) *ProfileRepository {
	return &ProfileRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *ProfileRepository) WithTx(tx pgx.Tx) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.Username,
		&p.AvatarID,
		&p.IsAdmin,
		&p.TelegramID,
		&p.Progress.XP,
		&p.Progress.Credits,
		&p.Progress.Streak,
		&p.Progress.HighestStreak,
		&p.Progress.Lives,
		&p.Progress.MaxLives,
		&p.Progress.LastRefillAt,
		&p.Progress.UnlockedProvinces,
		&p.Progress.ProvinceScores,
		&p.Progress.EarnedBadges,
		&p.Progress.LastLoginDate,
		&p.Progress.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Progress.UserID = p.ID
	if err := p.Progress.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s has invalid stored progress: %w", p.ID, err)
	}
	return &p, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, query string, args ...any) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Create inserts a profile with starting credits, full lives and the starter
// provinces unlocked.
func (r *ProfileRepository) Create(ctx context.Context, np NewProfile) (*model.Profile, error) {
	query := `
		INSERT INTO profiles (email, password_hash, username, is_admin, credits, lives, max_lives, unlocked_provinces)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		RETURNING ` + profileColumns

	starter := np.StarterProvinces
	if starter == nil {
		starter = []string{}
	}
	p, err := scanProfile(r.db.QueryRow(ctx, query,
		np.Email, np.PasswordHash, np.Username, np.IsAdmin, np.StartingCredits, np.MaxLives, model.ProvinceSet(starter),
	))
	if err != nil {
		switch uniqueConstraint(err) {
		case "profiles_username_key":
			return nil, ErrUsernameTaken
		case "profiles_email_key":
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// GetByID retrieves a profile by id.
// Returns ErrProfileNotFound if the profile does not exist.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a profile and locks its row until the
// surrounding transaction ends.
func (r *ProfileRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id)
}

// GetByEmail retrieves a profile by email, case-insensitively.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1)`, email)
}

// GetByUsername retrieves a profile by username.
func (r *ProfileRepository) GetByUsername(ctx context.Context, username string) (*model.Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username)
}

// GetByTelegramID retrieves the profile linked to a Telegram account.
func (r *ProfileRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE telegram_id = $1`, telegramID)
}

// GetByOAuth retrieves the profile linked to an identity provider subject.
func (r *ProfileRepository) GetByOAuth(ctx context.Context, provider, subject string) (*model.Profile, error) {
	return r.getOne(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE id = (SELECT profile_id FROM oauth_identities WHERE provider = $1 AND subject = $2)`,
		provider, subject)
}

// LinkOAuth links an identity provider subject to a profile.
func (r *ProfileRepository) LinkOAuth(ctx context.Context, profileID, provider, subject string) error {
	const query = `
		INSERT INTO oauth_identities (provider, subject, profile_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, subject) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, provider, subject, profileID); err != nil {
		return fmt.Errorf("failed to link oauth identity: %w", err)
	}
	return nil
}

// SetTelegramID links a Telegram account to a profile.
func (r *ProfileRepository) SetTelegramID(ctx context.Context, id string, telegramID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET telegram_id = $2, updated_at = NOW() WHERE id = $1`, id, telegramID)
	if err != nil {
		if uniqueConstraint(err) == "profiles_telegram_id_key" {
			return ErrTelegramLinked
		}
		return fmt.Errorf("failed to link telegram account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SetAvatar selects the profile avatar.
func (r *ProfileRepository) SetAvatar(ctx context.Context, id, avatarID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET avatar_id = $2, updated_at = NOW() WHERE id = $1`, id, avatarID)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// WriteProgress stores every mutable progress field and bumps the version.
// Callers hold the row lock from GetByIDForUpdate.
func (r *ProfileRepository) WriteProgress(ctx context.Context, p model.Progress) (model.Progress, error) {
	query := `
		UPDATE profiles SET
			xp = $2, credits = $3, streak = $4, highest_streak = $5, lives = $6, max_lives = $7,
			last_refill_at = $8, unlocked_provinces = $9, province_scores = $10, earned_badges = $11,
			last_login_date = $12, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	normalize(&p)
	saved, err := scanProfile(r.db.QueryRow(ctx, query,
		p.UserID, p.XP, p.Credits, p.Streak, p.HighestStreak, p.Lives, p.MaxLives,
		p.LastRefillAt, p.UnlockedProvinces, p.ProvinceScores, p.EarnedBadges, p.LastLoginDate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Progress{}, ErrProfileNotFound
		}
		return model.Progress{}, fmt.Errorf("failed to write progress: %w", err)
	}
	return saved.Progress, nil
}

// WriteProgressIfVersion is WriteProgress guarded by the expected version.
// Returns ErrVersionConflict when the stored version differs.
func (r *ProfileRepository) WriteProgressIfVersion(ctx context.Context, p model.Progress, version int64) (model.Progress, error) {
	query := `
		UPDATE profiles SET
			xp = $2, credits = $3, streak = $4, highest_streak = $5, lives = $6, max_lives = $7,
			last_refill_at = $8, unlocked_provinces = $9, province_scores = $10, earned_badges = $11,
			last_login_date = $12, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $13
		RETURNING ` + profileColumns

	normalize(&p)
	saved, err := scanProfile(r.db.QueryRow(ctx, query,
		p.UserID, p.XP, p.Credits, p.Streak, p.HighestStreak, p.Lives, p.MaxLives,
		p.LastRefillAt, p.UnlockedProvinces, p.ProvinceScores, p.EarnedBadges, p.LastLoginDate, version,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, p.UserID); getErr != nil {
				return model.Progress{}, getErr
			}
			return model.Progress{}, ErrVersionConflict
		}
		return model.Progress{}, fmt.Errorf("failed to write progress: %w", err)
	}
	return saved.Progress, nil
}

// AdjustCredits adds delta to the balance atomically. A debit that would go
// below zero fails with ErrInsufficientCredits.
func (r *ProfileRepository) AdjustCredits(ctx context.Context, id string, delta int64) (model.Progress, error) {
	query := `
		UPDATE profiles
		SET credits = credits + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND credits + $2 >= 0
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.QueryRow(ctx, query, id, delta))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return model.Progress{}, getErr
			}
			return model.Progress{}, ErrInsufficientCredits
		}
		return model.Progress{}, fmt.Errorf("failed to adjust credits: %w", err)
	}
	return p.Progress, nil
}

// SetCredits sets the balance to an exact value.
func (r *ProfileRepository) SetCredits(ctx context.Context, id string, credits int64) (model.Progress, error) {
	query := `
		UPDATE profiles
		SET credits = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := r.getOne(ctx, query, id, credits)
	if err != nil {
		return model.Progress{}, err
	}
	return p.Progress, nil
}

// DecrementHearts removes one life atomically, flooring at zero. The regen
// timer starts when lives leave the full state.
func (r *ProfileRepository) DecrementHearts(ctx context.Context, id string, now time.Time) (model.Progress, error) {
	query := `
		UPDATE profiles SET
			last_refill_at = CASE WHEN lives >= max_lives THEN $2 ELSE last_refill_at END,
			version = CASE WHEN lives > 0 THEN version + 1 ELSE version END,
			lives = GREATEST(lives - 1, 0),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := r.getOne(ctx, query, id, now)
	if err != nil {
		return model.Progress{}, err
	}
	return p.Progress, nil
}

// ListRegenerating returns the progress of every profile below max lives.
func (r *ProfileRepository) ListRegenerating(ctx context.Context, limit int) ([]model.Progress, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lives < max_lives ORDER BY last_refill_at NULLS FIRST LIMIT $1`

	profiles, err := r.list(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Progress, len(profiles))
	for i, p := range profiles {
		out[i] = p.Progress
	}
	return out, nil
}

// List returns profiles whose username or email contains search, newest first.
func (r *ProfileRepository) List(ctx context.Context, search string, limit, offset int) ([]*model.Profile, error) {
	query := `
		SELECT ` + profileColumns + ` FROM profiles
		WHERE $1 = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, search, limit, offset)
}

// ListAll returns every profile; used by admin broadcasts.
func (r *ProfileRepository) ListAll(ctx context.Context) ([]*model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at`)
}

// TopByXP retrieves the top N profiles by xp.
func (r *ProfileRepository) TopByXP(ctx context.Context, limit int) ([]*model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY xp DESC, username LIMIT $1`, limit)
}

// GetByIDs retrieves the given profiles ordered by xp.
func (r *ProfileRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1::uuid[]) ORDER BY xp DESC, username`, ids)
}

// Rank returns the 1-based xp rank of a profile. Profiles with equal xp
// share a rank.
func (r *ProfileRepository) Rank(ctx context.Context, id string) (int, error) {
	const query = `
		SELECT COUNT(*) + 1 FROM profiles
		WHERE xp > (SELECT xp FROM profiles WHERE id = $1)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check profile: %w", err)
	}
	if !exists {
		return 0, ErrProfileNotFound
	}

	var rank int
	if err := r.db.QueryRow(ctx, query, id).Scan(&rank); err != nil {
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, nil
}

func (r *ProfileRepository) list(ctx context.Context, query string, args ...any) ([]*model.Profile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// normalize replaces nil collections so JSONB columns never receive NULL.
func normalize(p *model.Progress) {
	if p.UnlockedProvinces == nil {
		p.UnlockedProvinces = model.ProvinceSet{}
	}
	if p.ProvinceScores == nil {
		p.ProvinceScores = model.ProvinceScores{}
	}
	if p.EarnedBadges == nil {
		p.EarnedBadges = model.EarnedBadges{}
	}
}
