package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
	"github.com/mmeshcher/campaign-ledger/internal/validation"
)

// CreateCampaignInput содержит поля новой кампании.
type CreateCampaignInput struct {
	Title              string
	Description        string
	Type               model.CampaignType
	GoalType           model.GoalType
	GoalAmount         *decimal.Decimal
	BaseAmount         *decimal.Decimal
	AcceptedCurrencies []model.Currency
	Deadline           *time.Time
}

// CreateCampaign создаёт кампанию в статусе pending_approval. Пустое описание
// заполняется генератором.
func (s *Service) CreateCampaign(ctx context.Context, owner Actor, in CreateCampaignInput) (*model.Campaign, error) {
	c := &model.Campaign{
		ID:                 uuid.New(),
		OwnerID:            owner.UserID,
		Title:              in.Title,
		Description:        in.Description,
		Type:               in.Type,
		GoalType:           in.GoalType,
		GoalAmount:         in.GoalAmount,
		BaseAmount:         in.BaseAmount,
		AcceptedCurrencies: in.AcceptedCurrencies,
		Deadline:           in.Deadline,
		Status:             model.CampaignStatusPendingApproval,
	}

	if err := validation.Campaign(c, s.now()); err != nil {
		return nil, invalidOperation(err.Error())
	}

	if c.Description == "" {
		c.Description = s.GenerateDescription(ctx, DescriptionInput{
			Title:              c.Title,
			Type:               c.Type,
			GoalAmount:         c.GoalAmount,
			BaseAmount:         c.BaseAmount,
			AcceptedCurrencies: c.AcceptedCurrencies,
		})
	}

	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, s.storeFailure("create campaign", err)
	}

	s.logger.Info("campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("owner_id", c.OwnerID.String()),
		zap.String("type", string(c.Type)))

	return c, nil
}

// GetCampaign возвращает кампанию, закрывая её, если дедлайн уже наступил.
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return s.loadCampaign(ctx, id)
}

// ListCampaigns возвращает кампании по фильтру.
func (s *Service) ListCampaigns(ctx context.Context, f model.CampaignFilter) ([]model.Campaign, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, err := s.repo.ListCampaigns(ctx, f)
	if err != nil {
		return nil, s.storeFailure("list campaigns", err)
	}

	for i := range list {
		c, err := s.materialize(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		list[i] = *c
	}
	return list, nil
}

// ApproveCampaign одобряет кампанию. Доступно только администратору.
func (s *Service) ApproveCampaign(ctx context.Context, id uuid.UUID, actor Actor) (*model.Campaign, error) {
	if !actor.IsAdmin {
		return nil, unauthorized("only an administrator can approve campaigns")
	}
	c, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, c, model.TransitionApprove, "")
}

// PauseCampaign приостанавливает активную кампанию владельца.
func (s *Service) PauseCampaign(ctx context.Context, id uuid.UUID, actor Actor) (*model.Campaign, error) {
	c, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsOwner(actor.UserID) {
		return nil, unauthorized("only the campaign owner can pause it")
	}
	return s.transition(ctx, c, model.TransitionPause, "")
}

// ActivateCampaign возобновляет приостановленную кампанию, если дедлайн не наступил.
func (s *Service) ActivateCampaign(ctx context.Context, id uuid.UUID, actor Actor) (*model.Campaign, error) {
	c, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsOwner(actor.UserID) {
		return nil, unauthorized("only the campaign owner can activate it")
	}
	if c.Deadline != nil && !c.Deadline.After(s.now()) {
		return nil, rejected("campaign deadline has passed")
	}
	return s.transition(ctx, c, model.TransitionActivate, "")
}

// CloseCampaign закрывает кампанию по решению владельца или администратора.
// Закрытие аукциона запускает возврат проигравших ставок.
func (s *Service) CloseCampaign(ctx context.Context, id uuid.UUID, actor Actor) (*model.Campaign, error) {
	c, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	reason := model.CloseReasonManual
	switch {
	case c.IsOwner(actor.UserID):
	case actor.IsAdmin:
		reason = model.CloseReasonAdmin
	default:
		return nil, unauthorized("only the campaign owner or an administrator can close it")
	}

	if c.Status == model.CampaignStatusClosed {
		return nil, rejected("campaign is already closed")
	}

	closed, err := s.transition(ctx, c, model.TransitionClose, reason)
	if err != nil {
		return nil, err
	}
	s.afterClose(ctx, closed)
	return closed, nil
}

func (s *Service) transition(ctx context.Context, c *model.Campaign, t model.Transition, reason model.CloseReason) (*model.Campaign, error) {
	to, from, ok := t.Apply(c.Status)
	if !ok {
		return nil, rejected(fmt.Sprintf("cannot %s a campaign in status %s", t, c.Status))
	}

	updated, err := s.repo.TransitionCampaign(ctx, c.ID, from, to, reason)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.raced("campaign status changed concurrently, please retry", err)
		}
		return nil, s.storeFailure("transition campaign", err)
	}

	s.logger.Info("campaign status changed",
		zap.String("campaign_id", c.ID.String()),
		zap.String("transition", string(t)),
		zap.String("from", string(c.Status)),
		zap.String("to", string(updated.Status)))

	return updated, nil
}

func (s *Service) loadCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, notFound("campaign not found")
		}
		return nil, s.storeFailure("get campaign", err)
	}
	return s.materialize(ctx, c)
}

// materialize приводит прочитанную кампанию к актуальному состоянию: закрывает
// её по дедлайну или по достигнутой цели. Повторный вызов ничего не меняет.
func (s *Service) materialize(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	now := s.now()

	if c.Expired(now) {
		closed, ok, err := s.repo.CloseExpired(ctx, c.ID, now)
		if err != nil {
			return nil, s.storeFailure("close expired campaign", err)
		}
		if !ok {
			return s.reload(ctx, c.ID)
		}
		s.logger.Info("campaign closed by deadline", zap.String("campaign_id", c.ID.String()))
		s.afterClose(ctx, closed)
		return closed, nil
	}

	if goalReached(c) && c.Status == model.CampaignStatusActive {
		closed, ok := s.closeOnGoal(ctx, c)
		if ok {
			return closed, nil
		}
		return s.reload(ctx, c.ID)
	}

	return c, nil
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, notFound("campaign not found")
		}
		return nil, s.storeFailure("get campaign", err)
	}
	return c, nil
}

func goalReached(c *model.Campaign) bool {
	return c.Type == model.CampaignTypeSimple &&
		c.GoalType == model.GoalTypeFixed &&
		c.GoalAmount != nil &&
		c.TotalDonations.GreaterThanOrEqual(*c.GoalAmount)
}

// closeOnGoal закрывает кампанию с достигнутой целью. Ошибка закрытия только
// логируется: пожертвование уже принято, закрытие повторится при следующем чтении.
func (s *Service) closeOnGoal(ctx context.Context, c *model.Campaign) (*model.Campaign, bool) {
	closed, err := s.repo.TransitionCampaign(ctx, c.ID,
		[]model.CampaignStatus{model.CampaignStatusActive, model.CampaignStatusPaused},
		model.CampaignStatusClosed, model.CloseReasonGoalReached)
	if err != nil {
		if !errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Error("failed to close campaign on goal",
				zap.String("campaign_id", c.ID.String()), zap.Error(err))
		}
		return nil, false
	}

	s.logger.Info("campaign goal reached", zap.String("campaign_id", c.ID.String()))
	s.notifier.Notify(closed.OwnerID, model.NotificationGoalReached,
		fmt.Sprintf("Your campaign %q reached its goal of %s AC.", closed.Title, closed.GoalAmount.StringFixed(2)))
	return closed, true
}

// afterClose выполняет действия, следующие за закрытием кампании.
func (s *Service) afterClose(ctx context.Context, c *model.Campaign) {
	if c.Type != model.CampaignTypeAuction {
		s.notifier.Notify(c.OwnerID, model.NotificationCampaignClosed,
			fmt.Sprintf("Your campaign %q is closed (%s). Collected %s AC.",
				c.Title, c.ClosedReason, c.TotalDonations.StringFixed(2)))
		return
	}
	s.settleAuction(ctx, c)
}
