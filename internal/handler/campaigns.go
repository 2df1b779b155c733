package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/service"
)

type createCampaignRequest struct {
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Type               model.CampaignType `json:"type"`
	GoalType           model.GoalType     `json:"goal_type"`
	GoalAmount         *decimal.Decimal   `json:"goal_amount"`
	BaseAmount         *decimal.Decimal   `json:"base_amount"`
	AcceptedCurrencies []model.Currency   `json:"accepted_currencies"`
	Deadline           *time.Time         `json:"deadline"`
}

// CreateCampaign создаёт кампанию от имени текущего пользователя.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createCampaignRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.service.CreateCampaign(r.Context(), actor, service.CreateCampaignInput{
		Title:              req.Title,
		Description:        req.Description,
		Type:               req.Type,
		GoalType:           req.GoalType,
		GoalAmount:         req.GoalAmount,
		BaseAmount:         req.BaseAmount,
		AcceptedCurrencies: req.AcceptedCurrencies,
		Deadline:           req.Deadline,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.ok(w, http.StatusCreated, "campaign created", c)
}

// ListCampaigns возвращает кампании с фильтрами status, type, owner_id и пагинацией.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.CampaignFilter{
		Status: model.CampaignStatus(q.Get("status")),
		Type:   model.CampaignType(q.Get("type")),
	}

	if raw := q.Get("owner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid owner_id")
			return
		}
		f.OwnerID = &id
	}

	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.service.ListCampaigns(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Campaign{}
	}
	h.ok(w, http.StatusOK, "", list)
}

// GetCampaign возвращает кампанию по идентификатору.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	c, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", c)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, actor service.Actor) (*model.Campaign, error)

func (h *Handler) transition(fn transitionFunc, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}

		c, err := fn(r.Context(), id, actor)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.ok(w, http.StatusOK, message, c)
	}
}

// ApproveCampaign переводит кампанию из pending_approval в active. Только для администратора.
func (h *Handler) ApproveCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.ApproveCampaign, "campaign approved")(w, r)
}

// PauseCampaign приостанавливает кампанию.
func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.PauseCampaign, "campaign paused")(w, r)
}

// ActivateCampaign возобновляет приостановленную кампанию.
func (h *Handler) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.ActivateCampaign, "campaign activated")(w, r)
}

// CloseCampaign закрывает кампанию вручную.
func (h *Handler) CloseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.CloseCampaign, "campaign closed")(w, r)
}

type descriptionRequest struct {
	Title              string             `json:"title"`
	Type               model.CampaignType `json:"type"`
	GoalAmount         *decimal.Decimal   `json:"goal_amount"`
	BaseAmount         *decimal.Decimal   `json:"base_amount"`
	AcceptedCurrencies []model.Currency   `json:"accepted_currencies"`
}

type descriptionResponse struct {
	Description string `json:"description"`
}

// GenerateDescription возвращает черновик описания кампании.
func (h *Handler) GenerateDescription(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	var req descriptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		h.fail(w, http.StatusBadRequest, "title is required")
		return
	}

	text := h.service.GenerateDescription(r.Context(), service.DescriptionInput{
		Title:              req.Title,
		Type:               req.Type,
		GoalAmount:         req.GoalAmount,
		BaseAmount:         req.BaseAmount,
		AcceptedCurrencies: req.AcceptedCurrencies,
	})
	h.ok(w, http.StatusOK, "", descriptionResponse{Description: text})
}

type bidRequest struct {
	CampaignID uuid.UUID       `json:"campaign_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// PlaceBid принимает ставку текущего пользователя в аукционе.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req bidRequest
	if !h.decode(w, r, &req) {
		return
	}
	cur, ok := h.currency(w, req.Currency)
	if !ok {
		return
	}

	bid, err := h.service.PlaceBid(r.Context(), req.CampaignID, actor.UserID, req.Amount, cur)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "bid placed", bid)
}

type donationRequest struct {
	CampaignID uuid.UUID       `json:"campaign_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Anonymous  bool            `json:"anonymous"`
}

// Donate принимает пожертвование текущего пользователя в простую кампанию.
func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req donationRequest
	if !h.decode(w, r, &req) {
		return
	}
	cur, ok := h.currency(w, req.Currency)
	if !ok {
		return
	}

	res, err := h.service.CreateDonation(r.Context(), service.DonationInput{
		CampaignID: req.CampaignID,
		DonorID:    actor.UserID,
		Amount:     req.Amount,
		Currency:   cur,
		Anonymous:  req.Anonymous,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	message := "donation accepted"
	if res.GoalReached {
		message = "donation accepted, campaign goal reached"
	}
	h.ok(w, http.StatusCreated, message, res)
}

// Claim выплачивает владельцу средства закрытой кампании.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	res, err := h.service.Claim(r.Context(), id, actor.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "funds claimed", res)
}

// ListBids возвращает историю ставок аукциона.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListBids(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Bid{}
	}
	h.ok(w, http.StatusOK, "", list)
}

// ListDonations возвращает пожертвования кампании; анонимные доноры скрыты.
func (h *Handler) ListDonations(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListDonations(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Donation{}
	}
	h.ok(w, http.StatusOK, "", list)
}
