package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

const missionColumns = `id, title, content, xp_reward, credit_reward, estimated_time, region, province_id, level, created_at, updated_at`

// MissionFilter narrows mission listings. Empty fields match everything.
type MissionFilter struct {
	ProvinceID string
	Region     string
	Search     string
}

// MissionRepository handles missions and their questions.
type MissionRepository struct {
	db db.DBTX
}

// NewMissionRepository creates a new MissionRepository instance.
func NewMissionRepository(conn db.DBTX) *MissionRepository {
	return &MissionRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *MissionRepository) WithTx(tx pgx.Tx) *MissionRepository {
	return &MissionRepository{db: tx}
}

func scanMission(row pgx.Row) (*model.Mission, error) {
	var m model.Mission
	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Content,
		&m.XPReward,
		&m.CreditReward,
		&m.EstimatedTime,
		&m.Region,
		&m.ProvinceID,
		&m.Level,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns missions matching the filter, ordered by level.
func (r *MissionRepository) List(ctx context.Context, f MissionFilter) ([]*model.Mission, error) {
	query := `
		SELECT ` + missionColumns + ` FROM missions
		WHERE ($1 = '' OR province_id = $1)
		  AND ($2 = '' OR region = $2)
		  AND ($3 = '' OR title ILIKE '%' || $3 || '%')
		ORDER BY level, title`

	rows, err := r.db.Query(ctx, query, f.ProvinceID, f.Region, f.Search)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missions: %w", err)
	}
	return missions, nil
}

// Get retrieves a mission with its ordered questions.
func (r *MissionRepository) Get(ctx context.Context, id string) (*model.Mission, error) {
	m, err := scanMission(r.db.QueryRow(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMissionNotFound
		}
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}

	questions, err := r.questions(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Questions = questions
	return m, nil
}

func (r *MissionRepository) questions(ctx context.Context, missionID string) ([]model.MissionQuestion, error) {
	const query = `
		SELECT id, position, text, type, options, correct_answer_index, explanation, image_url
		FROM mission_questions
		WHERE mission_id = $1
		ORDER BY position
	`
	rows, err := r.db.Query(ctx, query, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	questions := []model.MissionQuestion{}
	for rows.Next() {
		var q model.MissionQuestion
		if err := rows.Scan(&q.ID, &q.Position, &q.Text, &q.Type, &q.Options, &q.CorrectAnswerIndex, &q.Explanation, &q.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// Upsert inserts or updates a mission row. The returned mission has no
// questions; use ReplaceQuestions in the same transaction.
func (r *MissionRepository) Upsert(ctx context.Context, m model.Mission) (*model.Mission, error) {
	query := `
		INSERT INTO missions (id, title, content, xp_reward, credit_reward, estimated_time, region, province_id, level)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, content = EXCLUDED.content, xp_reward = EXCLUDED.xp_reward,
			credit_reward = EXCLUDED.credit_reward, estimated_time = EXCLUDED.estimated_time,
			region = EXCLUDED.region, province_id = EXCLUDED.province_id, level = EXCLUDED.level,
			updated_at = NOW()
		RETURNING ` + missionColumns

	saved, err := scanMission(r.db.QueryRow(ctx, query,
		m.ID, m.Title, m.Content, m.XPReward, m.CreditReward, m.EstimatedTime, m.Region, m.ProvinceID, m.Level,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert mission: %w", err)
	}
	return saved, nil
}

// ReplaceQuestions deletes every question of a mission and inserts the given
// set in order. Run it inside a transaction.
func (r *MissionRepository) ReplaceQuestions(ctx context.Context, missionID string, questions []model.MissionQuestion) ([]model.MissionQuestion, error) {
	if _, err := r.db.Exec(ctx, `DELETE FROM mission_questions WHERE mission_id = $1`, missionID); err != nil {
		return nil, fmt.Errorf("failed to delete questions: %w", err)
	}

	const query = `
		INSERT INTO mission_questions (mission_id, position, text, type, options, correct_answer_index, explanation, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	saved := make([]model.MissionQuestion, len(questions))
	for i, q := range questions {
		q.Position = i
		if q.Type == "" {
			q.Type = "multiple_choice"
		}
		if q.Options == nil {
			q.Options = []string{}
		}
		if err := r.db.QueryRow(ctx, query,
			missionID, q.Position, q.Text, q.Type, q.Options, q.CorrectAnswerIndex, q.Explanation, q.ImageURL,
		).Scan(&q.ID); err != nil {
			return nil, fmt.Errorf("failed to insert question %d: %w", i, err)
		}
		saved[i] = q
	}
	return saved, nil
}

// Delete removes a mission and, by cascade, its questions and attempts.
func (r *MissionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM missions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMissionNotFound
	}
	return nil
}

// RecordAttempt stores a quiz submission.
func (r *MissionRepository) RecordAttempt(ctx context.Context, profileID, missionID string, score, maxScore int, passed bool) error {
	const query = `
		INSERT INTO mission_attempts (profile_id, mission_id, score, max_score, passed)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, profileID, missionID, score, maxScore, passed); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// HasPassed reports whether the profile has passed the mission before.
func (r *MissionRepository) HasPassed(ctx context.Context, profileID, missionID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM mission_attempts WHERE profile_id = $1 AND mission_id = $2 AND passed)`
	var passed bool
	if err := r.db.QueryRow(ctx, query, profileID, missionID).Scan(&passed); err != nil {
		return false, fmt.Errorf("failed to check attempts: %w", err)
	}
	return passed, nil
}
