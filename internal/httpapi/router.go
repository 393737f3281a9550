// Package httpapi exposes the services over a JSON HTTP API. Every response
// body is a result envelope.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/geo"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/service"
)

var errDatabaseDown = result.New(result.KindBackend, "database unavailable")

// Services are the handlers' dependencies. Uploads may be nil when object
// storage is not configured.
type Services struct {
	Account     *service.AccountService
	Progression *service.ProgressionService
	Missions    *service.MissionService
	Shop        *service.ShopService
	Gifts       *service.GiftService
	Friends     *service.FriendService
	Ranking     *service.RankingService
	Admin       *service.AdminService
	Catalog     *service.CatalogService
	Feedback    *service.FeedbackService
	Analytics   *service.AnalyticsService
	Backup      *service.BackupService
	Geo         *geo.Catalog
	Uploads     service.ObjectStore
	// DB is pinged by /healthz when set.
	DB HealthChecker
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options tune the router.
type Options struct {
	RequestTimeout time.Duration
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
}

type api struct {
	svc  Services
	opts Options
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(svc Services, opts Options) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	a := &api{svc: svc, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", a.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", a.signUp)
			r.Post("/signin", a.signIn)
			r.Post("/refresh", a.refresh)
			r.Post("/signout", a.signOut)
			r.Get("/oauth/{provider}/start", a.oauthStart)
			r.Get("/oauth/{provider}/callback", a.oauthCallback)
			r.With(requireAuth(svc.Account)).Get("/me", a.me)
		})

		r.Get("/geo/regions", a.regions)
		r.Get("/badges", a.badges)
		r.Get("/avatars", a.avatars)
		r.Get("/shop/items", a.shopItems)
		r.Get("/leaderboard", a.leaderboard)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(svc.Account))

			r.Route("/me", func(r chi.Router) {
				r.Get("/progress", a.progress)
				r.Patch("/progress", a.patchProgress)
				r.Post("/hearts/decrement", a.decrementHearts)
				r.Post("/login", a.dailyLogin)
				r.Post("/telegram-link", a.telegramLink)
				r.Put("/avatar", a.selectAvatar)
				r.Get("/avatars", a.myAvatars)
				r.Get("/inventory", a.inventory)
				r.Get("/gifts", a.pendingGifts)
				r.Post("/gifts/{id}/claim", a.claimGift)
				r.Get("/rank", a.rank)
			})

			r.Get("/missions", a.missions)
			r.Get("/missions/{id}", a.mission)
			r.Post("/missions/{id}/submit", a.submitMission)

			r.Post("/shop/items/{id}/purchase", a.purchase)
			r.Post("/gifts", a.sendGift)

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", a.friends)
				r.Get("/leaderboard", a.friendLeaderboard)
				r.Post("/{id}", a.requestFriend)
				r.Post("/{id}/accept", a.acceptFriend)
				r.Delete("/{id}", a.removeFriend)
			})

			r.Post("/feedback", a.submitFeedback)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				a.adminRoutes(r)
			})
		})
	})

	return r
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "service": "deepsafe", "database": "unchecked"}
	if a.svc.DB != nil {
		if err := a.svc.DB.HealthCheck(r.Context()); err != nil {
			log.Warn().Err(err).Str("request_id", requestID(r)).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, result.FromError[any](errDatabaseDown))
			return
		}
		status["database"] = "up"
	}
	writeOK(w, http.StatusOK, status)
}
