package model

import "time"

// Mission is a lecture plus quiz tied to a province or a whole region.
type Mission struct {
	ID            string            `json:"id"`
	Title         string            `json:"title" validate:"required"`
	Content       string            `json:"content"`
	XPReward      int64             `json:"xp_reward" validate:"gte=0"`
	CreditReward  int64             `json:"credit_reward" validate:"gte=0"`
	EstimatedTime int               `json:"estimated_time" validate:"gte=0"`
	Region        *string           `json:"region,omitempty"`
	ProvinceID    *string           `json:"province_id,omitempty"`
	Level         int               `json:"level" validate:"gte=1"`
	Questions     []MissionQuestion `json:"questions,omitempty" validate:"dive"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// MissionQuestion is one ordered quiz question.
type MissionQuestion struct {
	ID                 int64    `json:"id"`
	Position           int      `json:"position"`
	Text               string   `json:"text" validate:"required"`
	Type               string   `json:"type"`
	Options            []string `json:"options" validate:"min=2"`
	CorrectAnswerIndex int      `json:"correct_answer_index" validate:"gte=0"`
	Explanation        string   `json:"explanation"`
	ImageURL           string   `json:"image_url"`
}

// Public hides the answer and explanation until the quiz is submitted.
func (q MissionQuestion) Public() MissionQuestion {
	q.CorrectAnswerIndex = -1
	q.Explanation = ""
	return q
}

// MissionResult is returned after a quiz submission.
type MissionResult struct {
	Score          int               `json:"score"`
	MaxScore       int               `json:"max_score"`
	Passed         bool              `json:"passed"`
	FirstCompleted bool              `json:"first_completed"`
	XPAwarded      int64             `json:"xp_awarded"`
	CreditsAwarded int64             `json:"credits_awarded"`
	NewBadges      []string          `json:"new_badges"`
	Questions      []MissionQuestion `json:"questions"`
	Progress       Progress          `json:"progress"`
}

// Avatar is a selectable profile picture.
type Avatar struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	ImageURL  string `json:"image_url"`
	IsPremium bool   `json:"is_premium"`
}

// AvatarChoice is a catalog avatar as seen by one player. Free avatars are
// always unlocked; premium ones once bought.
type AvatarChoice struct {
	Avatar
	Unlocked bool `json:"unlocked"`
	Selected bool `json:"selected"`
}

// Feedback statuses.
const (
	FeedbackOpen     = "open"
	FeedbackResolved = "resolved"
)

// Feedback is a player-submitted report.
type Feedback struct {
	ID         int64      `json:"id"`
	ProfileID  *string    `json:"profile_id,omitempty"`
	Category   string     `json:"category"`
	Message    string     `json:"message"`
	Rating     *int       `json:"rating,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
