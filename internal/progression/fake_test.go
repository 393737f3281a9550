package progression

import (
	"context"
	"sync"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
)

var errStale = result.New(result.KindConflict, "progress was changed elsewhere")

// memRepo is an in-memory backend with version checks and call counters.
type memRepo struct {
	mu        sync.Mutex
	progress  model.Progress
	catalog   []model.Badge
	fetches   int
	saves     int
	purchases int

	saveErr error
	// bumpBeforeSave simulates a concurrent writer on the next save.
	bumpBeforeSave func(p *model.Progress)
	purchaseGate   chan struct{}
	items          map[string]model.ShopItem
}

func newMemRepo(p model.Progress) *memRepo {
	if p.Version == 0 {
		p.Version = 1
	}
	return &memRepo{progress: p, items: map[string]model.ShopItem{}}
}

func (r *memRepo) FetchProgress(_ context.Context, _ string) (model.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	return r.progress.Clone(), nil
}

func (r *memRepo) SaveProgress(_ context.Context, _ string, patch model.ProgressPatch, version int64) (model.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return model.Progress{}, r.saveErr
	}
	if r.bumpBeforeSave != nil {
		r.bumpBeforeSave(&r.progress)
		r.progress.Version++
		r.bumpBeforeSave = nil
	}
	if version != r.progress.Version {
		return model.Progress{}, errStale
	}
	r.progress = r.progress.Apply(patch)
	r.progress.Version++
	return r.progress.Clone(), nil
}

func (r *memRepo) BadgeCatalog(_ context.Context) ([]model.Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog, nil
}

func (r *memRepo) PurchaseItem(_ context.Context, _ string, itemID string) (model.PurchaseOutcome, error) {
	if r.purchaseGate != nil {
		<-r.purchaseGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases++
	item, ok := r.items[itemID]
	if !ok {
		return model.PurchaseOutcome{}, result.New(result.KindNotFound, "item not found")
	}
	if r.progress.Credits < item.Cost {
		return model.PurchaseOutcome{}, result.New(result.KindInsufficient, "insufficient credits")
	}
	r.progress.Credits -= item.Cost
	r.progress.Version++
	return model.PurchaseOutcome{Progress: r.progress.Clone()}, nil
}

func (r *memRepo) counts() (fetches, saves, purchases int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches, r.saves, r.purchases
}

type mapGeo map[string][]string

func (g mapGeo) HasProvince(id string) bool {
	for _, ps := range g {
		for _, p := range ps {
			if p == id {
				return true
			}
		}
	}
	return false
}

func (g mapGeo) ProvincesOf(region string) []string { return g[region] }

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) Notify(x Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, x)
}

func (n *noticeLog) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}
