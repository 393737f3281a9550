package progression

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/lock"
	"deepsafe/internal/pkg/result"
)

// Operation names reported in notices and logs.
const (
	OpAddXP           = "add_xp"
	OpIncrementStreak = "increment_streak"
	OpResetStreak     = "reset_streak"
	OpDecrementLives  = "decrement_lives"
	OpAddHearts       = "add_hearts"
	OpRefillLives     = "refill_lives"
	OpRegenerate      = "regenerate_lives"
	OpUnlockProvince  = "unlock_province"
	OpProvinceScore   = "update_province_score"
	OpCheckBadges     = "check_badges"
	OpRefresh         = "refresh"
	OpPurchase        = "purchase"
)

var (
	ErrPurchaseInFlight  = result.New(result.KindInFlight, "a purchase of this item is already in progress")
	ErrInsufficientFunds = result.New(result.KindInsufficient, "insufficient credits")
	ErrOutOfStock        = result.New(result.KindInsufficient, "item is out of stock")
)

// LivesChange is the outcome of DecrementLives.
type LivesChange struct {
	Lives    int  `json:"lives"`
	GameOver bool `json:"game_over"`
}

// Store is the client-side source of truth for one user's progress. Actions
// run one at a time: each applies its rule to a pending copy, sends only the
// changed fields, and moves the copy to confirmed once the backend accepts
// it. A rejected write is retried once after a refetch when the backend
// reports a version conflict; any other failure discards the pending copy
// and notifies.
type Store struct {
	repo          Repository
	userID        string
	geo           Geography
	notifier      Notifier
	cache         Cache
	now           func() time.Time
	regenInterval time.Duration

	opMu      sync.Mutex
	purchases *lock.KeyedLock

	mu          sync.RWMutex
	confirmed   model.Progress
	pending     *model.Progress
	loaded      bool
	badges      []model.Badge
	badgesReady bool
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the receiver of failed-sync notices.
func WithNotifier(n Notifier) Option { return func(s *Store) { s.notifier = n } }

// WithCache mirrors confirmed snapshots into c.
func WithCache(c Cache) Option { return func(s *Store) { s.cache = c } }

// WithGeography sets the province catalog used for validation and region badges.
func WithGeography(g Geography) Option { return func(s *Store) { s.geo = g } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithRegenInterval sets the time it takes to regenerate one life.
func WithRegenInterval(d time.Duration) Option { return func(s *Store) { s.regenInterval = d } }

// NewStore creates a Store for userID. Nothing is fetched until the first
// action, Refresh or Hydrate.
func NewStore(repo Repository, userID string, opts ...Option) *Store {
	s := &Store{
		repo:          repo,
		userID:        userID,
		now:           time.Now,
		regenInterval: 30 * time.Minute,
		purchases:     lock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the pending snapshot while an action is in flight and the
// confirmed one otherwise.
func (s *Store) State() model.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending != nil {
		return s.pending.Clone()
	}
	return s.confirmed.Clone()
}

// Confirmed returns the last snapshot acknowledged by the backend.
func (s *Store) Confirmed() model.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmed.Clone()
}

// InFlight reports whether an action is waiting for the backend.
func (s *Store) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending != nil
}

// Hydrate loads the cached snapshot if nothing has been loaded yet. It
// reports whether a snapshot was found.
func (s *Store) Hydrate(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return true, nil
	}

	p, ok, err := s.cache.Load(ctx, s.userID)
	if err != nil || !ok {
		return false, err
	}
	s.mu.Lock()
	s.confirmed = p
	s.loaded = true
	s.mu.Unlock()
	return true, nil
}

// Refresh replaces local state wholesale with the backend snapshot and
// reloads the badge catalog. It is the only action that can move state
// backwards.
func (s *Store) Refresh(ctx context.Context) result.Result[model.Progress] {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.repo.FetchProgress(ctx, s.userID)
	if err != nil {
		s.fail(OpRefresh, err)
		return result.FromError[model.Progress](err)
	}
	s.confirm(ctx, p)

	if err := s.loadBadges(ctx); err != nil {
		log.Warn().Err(err).Str("user_id", s.userID).Msg("Failed to reload badge catalog")
	}
	return result.OK(p.Clone())
}

// AddXP raises xp and persists it.
func (s *Store) AddXP(ctx context.Context, amount int64) result.Result[model.Progress] {
	return s.run(ctx, OpAddXP, func(p model.Progress) (model.Progress, error) {
		return AddXP(p, amount)
	})
}

// IncrementStreak extends the streak by one. The caller decides when a day
// has rolled over.
func (s *Store) IncrementStreak(ctx context.Context) result.Result[model.Progress] {
	return s.run(ctx, OpIncrementStreak, func(p model.Progress) (model.Progress, error) {
		return IncrementStreak(p), nil
	})
}

// ResetStreak restarts the streak at one.
func (s *Store) ResetStreak(ctx context.Context) result.Result[model.Progress] {
	return s.run(ctx, OpResetStreak, func(p model.Progress) (model.Progress, error) {
		return ResetStreak(p), nil
	})
}

// DecrementLives removes one life and reports whether none are left.
func (s *Store) DecrementLives(ctx context.Context) result.Result[LivesChange] {
	now := s.now()
	res := s.run(ctx, OpDecrementLives, func(p model.Progress) (model.Progress, error) {
		return DecrementLives(p, now), nil
	})
	if !res.OK {
		return result.Fail[LivesChange](res.Kind, res.Message)
	}
	return result.OK(LivesChange{Lives: res.Value.Lives, GameOver: res.Value.Lives == 0})
}

// AddHearts raises lives up to the maximum.
func (s *Store) AddHearts(ctx context.Context, amount int) result.Result[model.Progress] {
	return s.run(ctx, OpAddHearts, func(p model.Progress) (model.Progress, error) {
		return AddHearts(p, amount)
	})
}

// RefillLives restores every life.
func (s *Store) RefillLives(ctx context.Context) result.Result[model.Progress] {
	return s.run(ctx, OpRefillLives, func(p model.Progress) (model.Progress, error) {
		return RefillLives(p), nil
	})
}

// RegenerateLives grants the lives earned by waiting since the timer started.
func (s *Store) RegenerateLives(ctx context.Context) result.Result[model.Progress] {
	now := s.now()
	return s.run(ctx, OpRegenerate, func(p model.Progress) (model.Progress, error) {
		return RegenerateLives(p, now, s.regenInterval), nil
	})
}

// UnlockProvince adds a province to the unlocked set. Unlocking an already
// unlocked province does not reach the backend.
func (s *Store) UnlockProvince(ctx context.Context, id string) result.Result[model.Progress] {
	return s.run(ctx, OpUnlockProvince, func(p model.Progress) (model.Progress, error) {
		if s.geo != nil && !s.geo.HasProvince(id) {
			return p, ErrUnknownProvince
		}
		return UnlockProvince(p, id), nil
	})
}

// UpdateProvinceScore merges a result into the score map. Only a merge that
// changes something is written.
func (s *Store) UpdateProvinceScore(ctx context.Context, id string, score, maxScore int, completed bool) result.Result[model.Progress] {
	return s.run(ctx, OpProvinceScore, func(p model.Progress) (model.Progress, error) {
		if s.geo != nil && !s.geo.HasProvince(id) {
			return p, ErrUnknownProvince
		}
		return MergeProvinceScore(p, id, score, maxScore, completed)
	})
}

// CheckBadges evaluates the catalog and returns the ids of badges unlocked by
// this call.
func (s *Store) CheckBadges(ctx context.Context) result.Result[[]string] {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.badgesLoadedLocked() {
		if err := s.loadBadges(ctx); err != nil {
			s.fail(OpCheckBadges, err)
			return result.FromError[[]string](err)
		}
	}
	s.mu.RLock()
	catalog := s.badges
	s.mu.RUnlock()

	now := s.now()
	var unlocked []model.Badge
	_, err := s.apply(ctx, OpCheckBadges, func(p model.Progress) (model.Progress, error) {
		var next model.Progress
		next, unlocked = AwardBadges(p, catalog, s.geo, now)
		return next, nil
	})
	if err != nil {
		return result.FromError[[]string](err)
	}

	ids := make([]string, len(unlocked))
	for i, b := range unlocked {
		ids[i] = b.ID
	}
	return result.OK(ids)
}

// Purchase buys item. Insufficient credits and sold-out items are rejected
// locally without contacting the backend, and a second purchase of the same
// item is rejected while the first is in flight.
func (s *Store) Purchase(ctx context.Context, item model.ShopItem) result.Result[model.PurchaseOutcome] {
	if !s.purchases.TryLock(item.ID) {
		return result.FromError[model.PurchaseOutcome](ErrPurchaseInFlight)
	}
	defer s.purchases.Unlock(item.ID)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		s.fail(OpPurchase, err)
		return result.FromError[model.PurchaseOutcome](err)
	}

	base := s.Confirmed()
	if !item.InStock() {
		return result.FromError[model.PurchaseOutcome](ErrOutOfStock)
	}
	if base.Credits < item.Cost {
		return result.FromError[model.PurchaseOutcome](ErrInsufficientFunds)
	}

	debited := base.Clone()
	debited.Credits -= item.Cost
	s.setPending(&debited)

	out, err := s.repo.PurchaseItem(ctx, s.userID, item.ID)
	if err != nil {
		s.fail(OpPurchase, err)
		return result.FromError[model.PurchaseOutcome](err)
	}
	s.confirm(ctx, out.Progress)

	log.Info().
		Str("user_id", s.userID).
		Str("item_id", item.ID).
		Int64("cost", item.Cost).
		Msg("Item purchased")

	return result.OK(out)
}

// run serializes an action and wraps its outcome.
func (s *Store) run(ctx context.Context, op string, rule func(model.Progress) (model.Progress, error)) result.Result[model.Progress] {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	p, err := s.apply(ctx, op, rule)
	return result.From(p, err)
}

// apply runs one action. The caller holds opMu.
func (s *Store) apply(ctx context.Context, op string, rule func(model.Progress) (model.Progress, error)) (model.Progress, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		s.fail(op, err)
		return model.Progress{}, err
	}

	base := s.Confirmed()
	saved, local, err := s.attempt(ctx, base, rule)
	if !local && result.KindOf(err) == result.KindConflict {
		log.Debug().Str("operation", op).Str("user_id", s.userID).Msg("Version conflict, refetching")

		fresh, ferr := s.repo.FetchProgress(ctx, s.userID)
		if ferr != nil {
			s.fail(op, ferr)
			return model.Progress{}, ferr
		}
		s.confirm(ctx, fresh)
		saved, local, err = s.attempt(ctx, fresh, rule)
	}
	if err != nil {
		// A rule rejection never left the client, so there is nothing to revert.
		if !local {
			s.fail(op, err)
		}
		return model.Progress{}, err
	}
	return saved, nil
}

// attempt applies rule to base and saves the difference. An empty
// difference is confirmed without a backend call. local is true when the
// rule itself rejected the action.
func (s *Store) attempt(ctx context.Context, base model.Progress, rule func(model.Progress) (model.Progress, error)) (saved model.Progress, local bool, err error) {
	next, err := rule(base.Clone())
	if err != nil {
		return model.Progress{}, true, err
	}
	patch := base.Diff(next)
	if patch.IsEmpty() {
		return base, false, nil
	}

	s.setPending(&next)
	saved, err = s.repo.SaveProgress(ctx, s.userID, patch, base.Version)
	if err != nil {
		s.setPending(nil)
		return model.Progress{}, false, err
	}
	s.confirm(ctx, saved)
	return saved.Clone(), false, nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	p, err := s.repo.FetchProgress(ctx, s.userID)
	if err != nil {
		return err
	}
	s.confirm(ctx, p)
	return nil
}

func (s *Store) loadBadges(ctx context.Context) error {
	catalog, err := s.repo.BadgeCatalog(ctx)
	if err != nil {
		s.mu.Lock()
		s.badgesReady = false
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.badges = catalog
	s.badgesReady = true
	s.mu.Unlock()
	return nil
}

func (s *Store) badgesLoadedLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.badgesReady
}

func (s *Store) setPending(p *model.Progress) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

// confirm adopts a backend snapshot and drops any pending copy.
func (s *Store) confirm(ctx context.Context, p model.Progress) {
	s.mu.Lock()
	s.confirmed = p.Clone()
	s.pending = nil
	s.loaded = true
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Save(ctx, p); err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("Failed to write progress cache")
		}
	}
}

// fail reverts to the confirmed snapshot and tells the user.
func (s *Store) fail(op string, err error) {
	s.setPending(nil)

	kind := result.KindOf(err)
	log.Warn().
		Err(err).
		Str("operation", op).
		Str("user_id", s.userID).
		Str("kind", string(kind)).
		Msg("Progress sync failed, change reverted")

	if s.notifier != nil {
		s.notifier.Notify(Notice{Op: op, Kind: kind, Message: result.MessageOf(err)})
	}
}
