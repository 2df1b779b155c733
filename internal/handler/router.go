package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mmeshcher/campaign-ledger/internal/metrics"
	custommiddleware "github.com/mmeshcher/campaign-ledger/internal/middleware"
)

const requestTimeout = 30 * time.Second

// SetupRouter настраивает HTTP-маршруты и middleware сервиса кампаний.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(custommiddleware.GzipMiddleware)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Get("/campaigns", h.ListCampaigns)
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Get("/campaigns/{id}/bids", h.ListBids)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/campaigns", h.CreateCampaign)
			r.Post("/campaigns/description", h.GenerateDescription)
			r.Post("/campaigns/bids", h.PlaceBid)
			r.Post("/campaigns/donations", h.Donate)

			r.Patch("/campaigns/{id}/approve", h.ApproveCampaign)
			r.Patch("/campaigns/{id}/pause", h.PauseCampaign)
			r.Patch("/campaigns/{id}/activate", h.ActivateCampaign)
			r.Patch("/campaigns/{id}/close", h.CloseCampaign)
			r.Post("/campaigns/{id}/claim", h.Claim)
			r.Get("/campaigns/{id}/donations", h.ListDonations)

			r.Get("/wallet", h.GetWallets)
			r.Post("/wallet/deposits", h.StartDeposit)
			r.Post("/wallet/withdrawals", h.Withdraw)
			r.Get("/wallet/withdrawals", h.GetWithdrawals)

			r.Get("/notifications", h.ListNotifications)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusNotFound, "route not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
