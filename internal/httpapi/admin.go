package httpapi

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/service"
	"deepsafe/internal/storage"
)

const maxUploadBytes = 10 << 20

var (
	errUploadsDisabled = result.New(result.KindBackend, "object storage is not configured")
	errUploadFolder    = result.New(result.KindValidation, "unknown upload folder")
	errNoRecipient     = result.New(result.KindValidation, "target_user_id must be a user id unless all is set")
	uploadFolders      = []string{"avatars", "badges", "missions", "shop", "gifts"}
)

func (a *api) adminRoutes(r chi.Router) {
	r.Route("/missions", func(r chi.Router) {
		r.Get("/", a.adminMissions)
		r.Put("/", a.upsertMission)
		r.Get("/{id}", a.adminMission)
		r.Delete("/{id}", a.deleteMission)
	})
	r.Route("/badges", func(r chi.Router) {
		r.Get("/", a.badges)
		r.Put("/", a.upsertBadge)
		r.Delete("/{id}", a.deleteBadge)
	})
	r.Route("/shop-items", func(r chi.Router) {
		r.Get("/", a.shopItems)
		r.Put("/", a.upsertShopItem)
		r.Delete("/{id}", a.deleteShopItem)
	})
	r.Route("/avatars", func(r chi.Router) {
		r.Get("/", a.avatars)
		r.Put("/", a.upsertAvatar)
		r.Delete("/{id}", a.deleteAvatar)
	})
	r.Route("/feedback", func(r chi.Router) {
		r.Get("/", a.listFeedback)
		r.Post("/{id}/resolve", a.resolveFeedback)
		r.Delete("/{id}", a.deleteFeedback)
	})
	r.Route("/users", func(r chi.Router) {
		r.Get("/", a.users)
		r.Get("/{id}/transactions", a.userTransactions)
		r.Post("/{id}/credits", a.adjustCredits)
		r.Put("/{id}/inventory", a.setInventory)
		r.Post("/{id}/reset", a.resetProgress)
	})
	r.Post("/gifts", a.adminGift)
	r.Get("/analytics", a.analytics)
	r.Get("/backup", a.exportBackup)
	r.Post("/restore", a.restoreBackup)
	r.Post("/uploads", a.upload)
}

// ========== Content ==========

func (a *api) adminMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := a.svc.Missions.List(r.Context(), missionFilter(r))
	respond(w, r, missions, err)
}

func (a *api) adminMission(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := a.svc.Missions.GetFull(r.Context(), id)
	respond(w, r, m, err)
}

func (a *api) upsertMission(w http.ResponseWriter, r *http.Request) {
	var m model.Mission
	if err := decode(w, r, &m); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := a.svc.Missions.Upsert(r.Context(), m)
	respond(w, r, saved, err)
}

func (a *api) deleteMission(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = a.svc.Missions.Delete(r.Context(), id)
	respond(w, r, true, err)
}

func (a *api) upsertBadge(w http.ResponseWriter, r *http.Request) {
	var b model.Badge
	if err := decode(w, r, &b); err != nil {
		writeError(w, r, err)
		return
	}
	err := a.svc.Catalog.UpsertBadge(r.Context(), b)
	respond(w, r, b, err)
}

func (a *api) deleteBadge(w http.ResponseWriter, r *http.Request) {
	err := a.svc.Catalog.DeleteBadge(r.Context(), chi.URLParam(r, "id"))
	respond(w, r, true, err)
}

func (a *api) upsertShopItem(w http.ResponseWriter, r *http.Request) {
	var item model.ShopItem
	if err := decode(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := a.svc.Shop.UpsertItem(r.Context(), item)
	respond(w, r, saved, err)
}

func (a *api) deleteShopItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = a.svc.Shop.DeleteItem(r.Context(), id)
	respond(w, r, true, err)
}

func (a *api) upsertAvatar(w http.ResponseWriter, r *http.Request) {
	var av model.Avatar
	if err := decode(w, r, &av); err != nil {
		writeError(w, r, err)
		return
	}
	err := a.svc.Catalog.UpsertAvatar(r.Context(), av)
	respond(w, r, av, err)
}

func (a *api) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	err := a.svc.Catalog.DeleteAvatar(r.Context(), chi.URLParam(r, "id"))
	respond(w, r, true, err)
}

// ========== Feedback ==========

func (a *api) listFeedback(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Feedback.List(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit", 100))
	respond(w, r, items, err)
}

func (a *api) resolveFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, true, a.svc.Feedback.Resolve(r.Context(), id))
}

func (a *api) deleteFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, true, a.svc.Feedback.Delete(r.Context(), id))
}

// ========== Users ==========

func (a *api) users(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := a.svc.Admin.Users(r.Context(), q.Get("search"), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	respond(w, r, users, err)
}

func (a *api) userTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := a.svc.Admin.Transactions(r.Context(), id, queryInt(r, "limit", 50))
	respond(w, r, txs, err)
}

type creditsRequest struct {
	Op     service.CreditOp `json:"op" validate:"required,oneof=add sub set"`
	Amount int64            `json:"amount" validate:"gte=0"`
}

func (a *api) adjustCredits(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req creditsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.svc.Admin.AdjustCredits(r.Context(), userID(r), id, req.Op, req.Amount)
	respond(w, r, p, err)
}

type inventoryRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

func (a *api) setInventory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req inventoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err = a.svc.Admin.SetInventory(r.Context(), userID(r), id, req.ItemID, req.Quantity)
	respond(w, r, true, err)
}

func (a *api) resetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.svc.Admin.ResetProgress(r.Context(), userID(r), id)
	respond(w, r, p, err)
}

// ========== Gifts ==========

type adminGiftRequest struct {
	service.GiftInput
	All bool `json:"all"`
}

type adminGiftResponse struct {
	Sent int         `json:"sent"`
	Gift *model.Gift `json:"gift,omitempty"`
}

// adminGift sends one gift, or the same gift to every user when all is set.
func (a *api) adminGift(w http.ResponseWriter, r *http.Request) {
	var req adminGiftRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.All {
		n, err := a.svc.Gifts.SendAll(r.Context(), userID(r), req.GiftInput)
		respond(w, r, adminGiftResponse{Sent: n}, err)
		return
	}
	if _, err := uuid.Parse(req.RecipientID); err != nil {
		writeError(w, r, errNoRecipient)
		return
	}
	gift, err := a.svc.Gifts.Send(r.Context(), userID(r), true, req.GiftInput)
	respond(w, r, adminGiftResponse{Sent: 1, Gift: gift}, err)
}

// ========== Analytics and backup ==========

func (a *api) analytics(w http.ResponseWriter, r *http.Request) {
	overview, err := a.svc.Analytics.Overview(r.Context(), queryInt(r, "days", 30))
	respond(w, r, overview, err)
}

func (a *api) exportBackup(w http.ResponseWriter, r *http.Request) {
	backup, err := a.svc.Backup.Export(r.Context())
	respond(w, r, backup, err)
}

type restoreRequest struct {
	Data map[string]json.RawMessage `json:"data" validate:"required"`
}

func (a *api) restoreBackup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 256<<20)
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, result.Wrap(result.KindValidation, "invalid backup body", err))
		return
	}
	err := a.svc.Backup.Restore(r.Context(), userID(r), req.Data)
	respond(w, r, true, err)
}

type uploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// upload stores a multipart "file" under the requested folder.
func (a *api) upload(w http.ResponseWriter, r *http.Request) {
	if a.svc.Uploads == nil {
		writeError(w, r, errUploadsDisabled)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, result.Wrap(result.KindValidation, "invalid multipart upload", err))
		return
	}
	folder := r.FormValue("folder")
	if !slices.Contains(uploadFolders, folder) {
		writeError(w, r, errUploadFolder)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, result.Wrap(result.KindValidation, "missing file", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.Key(folder, header.Filename)
	url, err := a.svc.Uploads.Upload(r.Context(), key, file, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, uploadResponse{URL: url, Key: key})
}
