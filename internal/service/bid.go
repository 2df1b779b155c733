package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/metrics"
	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
	"github.com/mmeshcher/campaign-ledger/internal/validation"
)

// minIncrement задаёт минимальный шаг суммы в AC.
var minIncrement = decimal.New(1, -currency.Precision)

// PlaceBid принимает ставку в аукционной кампании. Проверки выполняются по порядку,
// первая неудачная определяет ошибку. AC-эквивалент ставки списывается с AC-кошелька
// участника; при неудаче после списания средства возвращаются.
func (s *Service) PlaceBid(ctx context.Context, campaignID, bidderID uuid.UUID, amount decimal.Decimal, cur model.Currency) (bid *model.Bid, err error) {
	defer func() { metrics.BidsTotal.WithLabelValues(outcome(err)).Inc() }()

	c, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if c.Type != model.CampaignTypeAuction {
		return nil, invalidOperation("bids are only accepted by auction campaigns")
	}
	if !c.Accepts(cur) {
		return nil, rejected("currency not accepted")
	}
	if c.Deadline != nil && !c.Deadline.After(s.now()) {
		return nil, rejected("auction ended")
	}
	if c.Status != model.CampaignStatusActive {
		return nil, rejected("campaign is not active")
	}
	if err := validation.Amount(amount); err != nil {
		return nil, rejected("bid " + err.Error())
	}
	if c.BaseAmount != nil && amount.LessThan(*c.BaseAmount) {
		return nil, rejected("below minimum")
	}

	amountAC, err := currency.ToAC(amount, cur)
	if err != nil {
		return nil, rejected("currency not accepted")
	}

	floor := decimal.Zero
	switch {
	case c.HighestBid != nil:
		floor = *c.HighestBid
	case c.BaseAmount != nil:
		floor = *c.BaseAmount
	}
	if !amountAC.GreaterThan(floor) {
		return nil, rejected(minimumBidMessage(floor, cur))
	}

	if err := s.repo.Debit(ctx, bidderID, model.CurrencyAC, amountAC); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, rejectedWith("insufficient balance", err)
		}
		return nil, s.storeFailure("debit bidder wallet", err)
	}

	bid = &model.Bid{
		ID:         uuid.New(),
		CampaignID: c.ID,
		BidderID:   bidderID,
		Amount:     amount,
		Currency:   cur,
		AmountAC:   amountAC,
	}

	if _, err := s.repo.RecordBid(ctx, bid); err != nil {
		s.compensate(ctx, bidderID, model.CurrencyAC, amountAC, "record bid")
		if errors.Is(err, repository.ErrBidOutbid) {
			return nil, s.raced("a higher bid was placed concurrently, please retry", err)
		}
		return nil, s.storeFailure("record bid", err)
	}

	s.logger.Info("bid accepted",
		zap.String("campaign_id", c.ID.String()),
		zap.String("bid_id", bid.ID.String()),
		zap.String("bidder_id", bidderID.String()),
		zap.String("amount_ac", amountAC.StringFixed(currency.Precision)))

	if c.CurrentWinnerID != nil && *c.CurrentWinnerID != bidderID {
		s.notifier.Notify(*c.CurrentWinnerID, model.NotificationOutbid,
			fmt.Sprintf("You have been outbid on %q: the highest bid is now %s AC.",
				c.Title, amountAC.StringFixed(currency.Precision)))
	}

	return bid, nil
}

// minimumBidMessage сообщает минимальную ставку в валюте участника, строго
// превышающую текущий порог.
func minimumBidMessage(floorAC decimal.Decimal, cur model.Currency) string {
	minAC := floorAC.Add(minIncrement)
	minAmount, err := currency.FromAC(minAC, cur)
	if err != nil {
		minAmount, cur = minAC, model.CurrencyAC
	}
	return fmt.Sprintf("bid must exceed the current highest bid of %s AC; minimum required bid is %s %s",
		floorAC.StringFixed(currency.Precision), minAmount.StringFixed(currency.Precision), cur)
}

// ListBids возвращает историю ставок кампании.
func (s *Service) ListBids(ctx context.Context, campaignID uuid.UUID) ([]model.Bid, error) {
	if _, err := s.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	bids, err := s.repo.ListBids(ctx, campaignID)
	if err != nil {
		return nil, s.storeFailure("list bids", err)
	}
	return bids, nil
}

// compensate возвращает списанные средства, когда операция после списания не
// завершилась. Выполняется и при отменённом контексте запроса.
func (s *Service) compensate(ctx context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal, op string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.repo.Restore(ctx, userID, cur, amount); err != nil {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("compensating credit failed",
			zap.String("op", op),
			zap.String("user_id", userID.String()),
			zap.String("currency", string(cur)),
			zap.String("amount", amount.StringFixed(currency.Precision)),
			zap.Error(err))
		return
	}
	metrics.CompensationsTotal.WithLabelValues("ok").Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}
