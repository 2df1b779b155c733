// Package handler содержит HTTP-обработчики API сервиса кампаний.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/middleware"
	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/payment"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
	"github.com/mmeshcher/campaign-ledger/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateCampaign(ctx context.Context, owner service.Actor, in service.CreateCampaignInput) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, f model.CampaignFilter) ([]model.Campaign, error)
	ApproveCampaign(ctx context.Context, id uuid.UUID, actor service.Actor) (*model.Campaign, error)
	PauseCampaign(ctx context.Context, id uuid.UUID, actor service.Actor) (*model.Campaign, error)
	ActivateCampaign(ctx context.Context, id uuid.UUID, actor service.Actor) (*model.Campaign, error)
	CloseCampaign(ctx context.Context, id uuid.UUID, actor service.Actor) (*model.Campaign, error)
	GenerateDescription(ctx context.Context, in service.DescriptionInput) string

	PlaceBid(ctx context.Context, campaignID, bidderID uuid.UUID, amount decimal.Decimal, cur model.Currency) (*model.Bid, error)
	ListBids(ctx context.Context, campaignID uuid.UUID) ([]model.Bid, error)
	CreateDonation(ctx context.Context, in service.DonationInput) (*service.DonationResult, error)
	ListDonations(ctx context.Context, campaignID uuid.UUID, viewer service.Actor) ([]model.Donation, error)
	Claim(ctx context.Context, campaignID, claimantID uuid.UUID) (*service.ClaimResult, error)

	GetWallets(ctx context.Context, userID uuid.UUID) ([]model.Wallet, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cur model.Currency) (*model.Withdrawal, error)
	GetWithdrawals(ctx context.Context, userID uuid.UUID) ([]model.Withdrawal, error)
	StartDeposit(ctx context.Context, userID uuid.UUID, coins decimal.Decimal, cur model.Currency) (*model.Payment, error)
	HandlePaymentEvent(ctx context.Context, ev *payment.Event) error
	ListNotifications(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
}

// Handler реализует HTTP-обработчики API сервиса кампаний.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	webhookSecret  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, webhookSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		webhookSecret:  webhookSecret,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) ok(w http.ResponseWriter, status int, message string, data any) {
	h.writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, envelope{Success: false, Message: message, Error: http.StatusText(status)})
}

// respondError переводит ошибку сервиса в HTTP-ответ.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		h.logger.Error("unexpected service error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := statusFor(se)
	if !se.Expected() {
		h.logger.Warn("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", se.Kind.String()),
			zap.Error(se))
	}
	h.fail(w, status, se.Message)
}

func statusFor(se *service.Error) int {
	switch se.Kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidOperation:
		return http.StatusBadRequest
	case service.KindRejected:
		if errors.Is(se, repository.ErrInsufficientBalance) {
			return http.StatusPaymentRequired
		}
		return http.StatusUnprocessableEntity
	case service.KindUnauthorized:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.fail(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	u, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusUnauthorized, "authentication required")
		return service.Actor{}, false
	}
	return service.Actor{UserID: u.ID, IsAdmin: u.IsAdmin()}, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) currency(w http.ResponseWriter, raw string) (model.Currency, bool) {
	cur, ok := model.ParseCurrency(raw)
	if !ok {
		h.fail(w, http.StatusBadRequest, "unknown currency")
	}
	return cur, ok
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
