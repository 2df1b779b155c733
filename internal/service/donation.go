package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/metrics"
	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
	"github.com/mmeshcher/campaign-ledger/internal/validation"
)

// DonationInput содержит параметры пожертвования.
type DonationInput struct {
	CampaignID uuid.UUID
	DonorID    uuid.UUID
	Amount     decimal.Decimal
	Currency   model.Currency
	Anonymous  bool
}

// DonationResult содержит принятое пожертвование и состояние кампании после него.
type DonationResult struct {
	Donation    *model.Donation `json:"donation"`
	Campaign    *model.Campaign `json:"campaign"`
	GoalReached bool            `json:"goal_reached"`
}

// CreateDonation принимает пожертвование в простую кампанию. Сумма списывается
// с кошелька донора в валюте пожертвования; каждый пользователь жертвует в
// кампанию не более одного раза.
func (s *Service) CreateDonation(ctx context.Context, in DonationInput) (res *DonationResult, err error) {
	defer func() { metrics.DonationsTotal.WithLabelValues(outcome(err)).Inc() }()

	c, err := s.loadCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}

	if c.Deadline != nil && !c.Deadline.After(s.now()) {
		return nil, rejected("campaign ended")
	}
	if c.Type != model.CampaignTypeSimple {
		return nil, invalidOperation("donations are only accepted by simple donation campaigns")
	}
	if !c.Accepts(in.Currency) {
		return nil, rejected("currency not accepted")
	}
	if c.Status != model.CampaignStatusActive {
		return nil, rejected("campaign is not active")
	}
	if err := validation.Amount(in.Amount); err != nil {
		return nil, rejected("donation " + err.Error())
	}

	donated, err := s.repo.HasDonated(ctx, c.ID, in.DonorID)
	if err != nil {
		return nil, s.storeFailure("check donation", err)
	}
	if donated {
		return nil, rejected("already donated")
	}

	amountAC, err := currency.ToAC(in.Amount, in.Currency)
	if err != nil {
		return nil, rejected("currency not accepted")
	}

	if err := s.repo.Debit(ctx, in.DonorID, in.Currency, in.Amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, rejectedWith("insufficient balance", err)
		}
		return nil, s.storeFailure("debit donor wallet", err)
	}

	d := &model.Donation{
		ID:                 uuid.New(),
		CampaignID:         c.ID,
		DonorID:            in.DonorID,
		Amount:             in.Amount,
		Currency:           in.Currency,
		AmountAC:           amountAC,
		AnonymouslyDonated: in.Anonymous,
	}

	updated, err := s.repo.RecordDonation(ctx, d)
	if err != nil {
		s.compensate(ctx, in.DonorID, in.Currency, in.Amount, "record donation")
		switch {
		case errors.Is(err, repository.ErrAlreadyDonated):
			return nil, rejectedWith("already donated", err)
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, s.raced("campaign stopped accepting donations, please retry", err)
		default:
			return nil, s.storeFailure("record donation", err)
		}
	}

	s.logger.Info("donation accepted",
		zap.String("campaign_id", c.ID.String()),
		zap.String("donation_id", d.ID.String()),
		zap.String("amount_ac", amountAC.StringFixed(currency.Precision)))

	res = &DonationResult{Donation: d, Campaign: updated}
	if goalReached(updated) {
		if closed, ok := s.closeOnGoal(ctx, updated); ok {
			res.Campaign = closed
			res.GoalReached = true
		}
	}
	return res, nil
}

// ListDonations возвращает пожертвования кампании. Анонимные доноры скрыты от
// всех, кроме самого донора и администратора.
func (s *Service) ListDonations(ctx context.Context, campaignID uuid.UUID, viewer Actor) ([]model.Donation, error) {
	if _, err := s.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListDonations(ctx, campaignID)
	if err != nil {
		return nil, s.storeFailure("list donations", err)
	}

	for i := range list {
		if list[i].AnonymouslyDonated && !viewer.IsAdmin && list[i].DonorID != viewer.UserID {
			list[i].DonorID = uuid.Nil
		}
	}
	return list, nil
}
