package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/metrics"
	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
)

// ClaimResult описывает выплату владельцу закрытой кампании.
type ClaimResult struct {
	CampaignID uuid.UUID       `json:"campaign_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   model.Currency  `json:"currency"`
	ClaimedAt  time.Time       `json:"claimed_at"`
}

// Claim выплачивает владельцу средства закрытой кампании ровно один раз. Для
// аукциона выплачивается максимальная ставка, проигравшие ставки возвращаются.
func (s *Service) Claim(ctx context.Context, campaignID, claimantID uuid.UUID) (res *ClaimResult, err error) {
	defer func() { metrics.ClaimsTotal.WithLabelValues(outcome(err)).Inc() }()

	c, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if c.Status != model.CampaignStatusClosed {
		return nil, rejected("campaign is not closed")
	}
	if !c.IsOwner(claimantID) {
		return nil, unauthorized("only the campaign owner can claim funds")
	}
	if c.IsClaimed {
		return nil, rejected("already claimed")
	}

	var payout decimal.Decimal
	switch c.Type {
	case model.CampaignTypeAuction:
		s.refundLosingBids(ctx, c)
		if c.HighestBid != nil {
			payout = *c.HighestBid
		}
	default:
		fromAB, _ := currency.ToAC(c.TotalDonationsAB, model.CurrencyAB)
		payout = c.TotalDonationsAC.Add(fromAB)
	}

	if !payout.IsPositive() {
		return nil, rejected("no funds to claim")
	}

	claimedAt, err := s.repo.ClaimPayout(ctx, c.ID, claimantID, model.CurrencyAC, payout)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			return nil, rejectedWith("already claimed", err)
		}
		return nil, s.storeFailure("claim payout", err)
	}

	s.logger.Info("campaign funds claimed",
		zap.String("campaign_id", c.ID.String()),
		zap.String("owner_id", claimantID.String()),
		zap.String("payout_ac", payout.StringFixed(currency.Precision)))

	return &ClaimResult{
		CampaignID: c.ID,
		Amount:     payout,
		Currency:   model.CurrencyAC,
		ClaimedAt:  claimedAt,
	}, nil
}

// settleAuction возвращает проигравшие ставки закрытого аукциона и уведомляет
// победителя и владельца. Повторный вызов безопасен.
func (s *Service) settleAuction(ctx context.Context, c *model.Campaign) {
	s.refundLosingBids(ctx, c)

	if c.CurrentWinnerID == nil || c.HighestBid == nil {
		s.notifier.Notify(c.OwnerID, model.NotificationCampaignClosed,
			fmt.Sprintf("Your auction %q closed without bids.", c.Title))
		return
	}

	amount := c.HighestBid.StringFixed(currency.Precision)
	s.notifier.Notify(*c.CurrentWinnerID, model.NotificationAuctionWon,
		fmt.Sprintf("You won the auction %q with a bid of %s AC.", c.Title, amount))
	s.notifier.Notify(c.OwnerID, model.NotificationCampaignClosed,
		fmt.Sprintf("Your auction %q closed with a winning bid of %s AC. Funds are ready to claim.", c.Title, amount))
}

// refundLosingBids возвращает все невозвращённые ставки, кроме выигравшей. Каждый
// возврат выполняется отдельной транзакцией; неудачные остаются для фоновой задачи.
func (s *Service) refundLosingBids(ctx context.Context, c *model.Campaign) (refunded, failed int) {
	skip := make(map[uuid.UUID]bool)

	for {
		limit := batchSize + len(skip)
		bids, err := s.repo.ListRefundableBids(ctx, c.ID, c.WinningBidID, limit)
		if err != nil {
			s.logger.Error("failed to list refundable bids",
				zap.String("campaign_id", c.ID.String()), zap.Error(err))
			return refunded, failed
		}

		progressed := false
		for _, b := range bids {
			if skip[b.ID] {
				continue
			}
			progressed = true

			ok, err := s.repo.RefundBid(ctx, b.ID)
			if err != nil {
				skip[b.ID] = true
				failed++
				metrics.RefundsTotal.WithLabelValues("failed").Inc()
				s.logger.Error("bid refund failed",
					zap.String("campaign_id", c.ID.String()),
					zap.String("bid_id", b.ID.String()),
					zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			refunded++
			metrics.RefundsTotal.WithLabelValues("ok").Inc()
			s.notifier.Notify(b.BidderID, model.NotificationRefund,
				fmt.Sprintf("Your bid of %s %s on %q was refunded (%s AC).",
					b.Amount.StringFixed(currency.Precision), b.Currency, c.Title,
					b.AmountAC.StringFixed(currency.Precision)))
		}

		if !progressed || len(bids) < limit {
			break
		}
	}

	if refunded > 0 || failed > 0 {
		s.logger.Info("auction refunds processed",
			zap.String("campaign_id", c.ID.String()),
			zap.Int("refunded", refunded),
			zap.Int("failed", failed))
	}
	return refunded, failed
}

// RetryPendingRefunds повторяет возвраты для закрытых аукционов, у которых
// остались невозвращённые проигравшие ставки.
func (s *Service) RetryPendingRefunds(ctx context.Context) error {
	ids, err := s.repo.ListCampaignsPendingRefunds(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("list campaigns pending refunds: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c, err := s.repo.GetCampaign(ctx, id)
		if err != nil {
			s.logger.Error("failed to load campaign for refund retry",
				zap.String("campaign_id", id.String()), zap.Error(err))
			continue
		}
		s.refundLosingBids(ctx, c)
	}
	return nil
}
