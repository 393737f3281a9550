package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/repository"
	"deepsafe/internal/service"
)

var errBadID = result.New(result.KindValidation, "invalid id")

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// uuidParam returns a URL parameter that must be a UUID.
func uuidParam(r *http.Request, name string) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return "", errBadID
	}
	return id.String(), nil
}

func setVersion(w http.ResponseWriter, p model.Progress) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(p.Version, 10)))
}

// ========== Progress ==========

func (a *api) progress(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Progression.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setVersion(w, p)
	writeOK(w, http.StatusOK, p)
}

func (a *api) patchProgress(w http.ResponseWriter, r *http.Request) {
	version, err := ifMatchVersion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch model.ProgressPatch
	if err := decode(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.svc.Progression.Patch(r.Context(), userID(r), patch, version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setVersion(w, p)
	writeOK(w, http.StatusOK, p)
}

func (a *api) decrementHearts(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Progression.DecrementHearts(r.Context(), userID(r))
	respond(w, r, p, err)
}

func (a *api) dailyLogin(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Progression.DailyLogin(r.Context(), userID(r))
	respond(w, r, res, err)
}

// ========== Account settings ==========

type telegramLinkResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *api) telegramLink(w http.ResponseWriter, r *http.Request) {
	code, expires, err := a.svc.Account.CreateTelegramLink(r.Context(), userID(r))
	respond(w, r, telegramLinkResponse{Code: code, ExpiresAt: expires}, err)
}

type avatarRequest struct {
	AvatarID string `json:"avatar_id" validate:"required"`
}

func (a *api) selectAvatar(w http.ResponseWriter, r *http.Request) {
	var req avatarRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.svc.Account.SelectAvatar(r.Context(), userID(r), req.AvatarID)
	respond(w, r, p, err)
}

func (a *api) myAvatars(w http.ResponseWriter, r *http.Request) {
	avatars, err := a.svc.Account.Avatars(r.Context(), userID(r))
	respond(w, r, avatars, err)
}

// ========== Catalogs ==========

func (a *api) regions(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, a.svc.Geo.Regions())
}

func (a *api) badges(w http.ResponseWriter, r *http.Request) {
	badges, err := a.svc.Catalog.Badges(r.Context())
	respond(w, r, badges, err)
}

func (a *api) avatars(w http.ResponseWriter, r *http.Request) {
	avatars, err := a.svc.Catalog.Avatars(r.Context())
	respond(w, r, avatars, err)
}

// ========== Missions ==========

func missionFilter(r *http.Request) repository.MissionFilter {
	q := r.URL.Query()
	return repository.MissionFilter{
		ProvinceID: q.Get("province"),
		Region:     q.Get("region"),
		Search:     q.Get("search"),
	}
}

func (a *api) missions(w http.ResponseWriter, r *http.Request) {
	missions, err := a.svc.Missions.List(r.Context(), missionFilter(r))
	respond(w, r, missions, err)
}

func (a *api) mission(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := a.svc.Missions.Get(r.Context(), id)
	respond(w, r, m, err)
}

type submitRequest struct {
	Answers []int `json:"answers" validate:"required"`
}

func (a *api) submitMission(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.svc.Missions.Submit(r.Context(), userID(r), id, req.Answers)
	respond(w, r, res, err)
}

// ========== Shop ==========

func (a *api) shopItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Shop.Items(r.Context())
	respond(w, r, items, err)
}

func (a *api) purchase(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := a.svc.Shop.Purchase(r.Context(), userID(r), id)
	respond(w, r, out, err)
}

func (a *api) inventory(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Shop.Inventory(r.Context(), userID(r))
	respond(w, r, items, err)
}

// ========== Gifts ==========

func (a *api) sendGift(w http.ResponseWriter, r *http.Request) {
	var req service.GiftInput
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := uuid.Parse(req.RecipientID); err != nil {
		writeError(w, r, errNoRecipient)
		return
	}
	claims, _ := claimsFrom(r.Context())
	gift, err := a.svc.Gifts.Send(r.Context(), claims.Subject, claims.Admin, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, gift)
}

func (a *api) pendingGifts(w http.ResponseWriter, r *http.Request) {
	gifts, err := a.svc.Gifts.Pending(r.Context(), userID(r))
	respond(w, r, gifts, err)
}

func (a *api) claimGift(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.svc.Gifts.Claim(r.Context(), userID(r), id)
	respond(w, r, res, err)
}

// ========== Friends and ranking ==========

func (a *api) friends(w http.ResponseWriter, r *http.Request) {
	friends, err := a.svc.Friends.List(r.Context(), userID(r))
	respond(w, r, friends, err)
}

func (a *api) requestFriend(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = a.svc.Friends.Request(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, true)
}

func (a *api) acceptFriend(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = a.svc.Friends.Accept(r.Context(), userID(r), id)
	respond(w, r, true, err)
}

func (a *api) removeFriend(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = a.svc.Friends.Remove(r.Context(), userID(r), id)
	respond(w, r, true, err)
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.Ranking.Leaderboard(r.Context(), queryInt(r, "limit", 10))
	respond(w, r, entries, err)
}

func (a *api) friendLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.Ranking.FriendLeaderboard(r.Context(), userID(r))
	respond(w, r, entries, err)
}

type rankResponse struct {
	Rank int `json:"rank"`
}

func (a *api) rank(w http.ResponseWriter, r *http.Request) {
	rank, err := a.svc.Ranking.Rank(r.Context(), userID(r))
	respond(w, r, rankResponse{Rank: rank}, err)
}

// ========== Feedback ==========

func (a *api) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req service.FeedbackInput
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := userID(r)
	f, err := a.svc.Feedback.Submit(r.Context(), &id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, f)
}
