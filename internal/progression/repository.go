package progression

import (
	"context"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
)

// Repository is the backend the Store synchronizes with. Every method returns
// a classified *result.Error on failure; SaveProgress reports a stale version
// as result.KindConflict.
type Repository interface {
	FetchProgress(ctx context.Context, userID string) (model.Progress, error)
	SaveProgress(ctx context.Context, userID string, patch model.ProgressPatch, version int64) (model.Progress, error)
	BadgeCatalog(ctx context.Context) ([]model.Badge, error)
	PurchaseItem(ctx context.Context, userID, itemID string) (model.PurchaseOutcome, error)
}

// Cache mirrors the confirmed snapshot locally so a restarted client can show
// state before its first refresh.
type Cache interface {
	Load(ctx context.Context, userID string) (model.Progress, bool, error)
	Save(ctx context.Context, p model.Progress) error
}

// Geography resolves the province ids used by unlocks and region badges.
type Geography interface {
	HasProvince(id string) bool
	ProvincesOf(regionID string) []string
}

// Notice tells the user that a change was not saved and has been reverted.
type Notice struct {
	Op      string
	Kind    result.Kind
	Message string
}

// Notifier receives failed-sync notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
