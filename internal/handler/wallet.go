package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/payment"
	"github.com/mmeshcher/campaign-ledger/internal/service"
)

const maxWebhookBody = 64 << 10

// GetWallets возвращает балансы текущего пользователя.
func (h *Handler) GetWallets(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	wallets, err := h.service.GetWallets(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "", wallets)
}

type walletAmountRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Withdraw списывает средства текущего пользователя на вывод.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req walletAmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	cur, ok := h.currency(w, req.Currency)
	if !ok {
		return
	}

	wd, err := h.service.Withdraw(r.Context(), actor.UserID, req.Amount, cur)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "withdrawal created", wd)
}

// GetWithdrawals возвращает историю выводов текущего пользователя.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	list, err := h.service.GetWithdrawals(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Withdrawal{}
	}
	h.ok(w, http.StatusOK, "", list)
}

// StartDeposit открывает сессию оплаты для покупки монет.
func (h *Handler) StartDeposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req walletAmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	cur, ok := h.currency(w, req.Currency)
	if !ok {
		return
	}

	p, err := h.service.StartDeposit(r.Context(), actor.UserID, req.Amount, cur)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "checkout session created", p)
}

// ListNotifications возвращает уведомления текущего пользователя.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListNotifications(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	h.ok(w, http.StatusOK, "", list)
}

// PaymentWebhook принимает подписанные события платёжного шлюза.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.fail(w, http.StatusBadRequest, "cannot read body")
		return
	}

	ev, err := payment.ParseEvent(h.webhookSecret, body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.logger.Warn("payment webhook with invalid signature", zap.String("remote", r.RemoteAddr))
			h.fail(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		h.fail(w, http.StatusBadRequest, "malformed event")
		return
	}

	if err := h.service.HandlePaymentEvent(r.Context(), ev); err != nil {
		if service.KindOf(err) == service.KindNotFound {
			// Шлюз не должен повторять событие о неизвестном платеже.
			h.logger.Warn("payment event for unknown session",
				zap.String("event_id", ev.ID), zap.String("session_id", ev.SessionID))
			h.ok(w, http.StatusOK, "ignored", nil)
			return
		}
		h.respondError(w, r, err)
		return
	}

	h.ok(w, http.StatusOK, "processed", nil)
}
