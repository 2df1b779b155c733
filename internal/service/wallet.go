package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/payment"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
	"github.com/mmeshcher/campaign-ledger/internal/validation"
)

var walletCurrencies = []model.Currency{model.CurrencyAC, model.CurrencyAB, model.CurrencySP}

// GetWallets возвращает балансы пользователя во всех валютах; отсутствующие
// кошельки возвращаются с нулевым балансом.
func (s *Service) GetWallets(ctx context.Context, userID uuid.UUID) ([]model.Wallet, error) {
	stored, err := s.repo.GetWallets(ctx, userID)
	if err != nil {
		return nil, s.storeFailure("get wallets", err)
	}

	byCurrency := make(map[model.Currency]model.Wallet, len(stored))
	for _, w := range stored {
		byCurrency[w.Currency] = w
	}

	res := make([]model.Wallet, 0, len(walletCurrencies))
	for _, cur := range walletCurrencies {
		w, ok := byCurrency[cur]
		if !ok {
			w = model.Wallet{UserID: userID, Currency: cur}
		}
		res = append(res, w)
	}
	return res, nil
}

// Withdraw списывает средства с кошелька пользователя на вывод.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cur model.Currency) (*model.Withdrawal, error) {
	if !currency.Convertible(cur) {
		return nil, invalidOperation(fmt.Sprintf("currency %s cannot be withdrawn", cur))
	}
	if err := validation.Amount(amount); err != nil {
		return nil, invalidOperation("withdraw " + err.Error())
	}

	w := &model.Withdrawal{
		ID:       uuid.New(),
		UserID:   userID,
		Amount:   amount,
		Currency: cur,
		Status:   model.WithdrawalStatusPending,
	}
	if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, rejectedWith("insufficient balance", err)
		}
		return nil, s.storeFailure("create withdrawal", err)
	}

	s.logger.Info("withdrawal created",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.StringFixed(currency.Precision)),
		zap.String("currency", string(cur)))
	return w, nil
}

// GetWithdrawals возвращает историю выводов пользователя.
func (s *Service) GetWithdrawals(ctx context.Context, userID uuid.UUID) ([]model.Withdrawal, error) {
	list, err := s.repo.GetWithdrawalsByUser(ctx, userID)
	if err != nil {
		return nil, s.storeFailure("get withdrawals", err)
	}
	return list, nil
}

// StartDeposit открывает сессию оплаты в платёжном шлюзе для покупки монет.
func (s *Service) StartDeposit(ctx context.Context, userID uuid.UUID, coins decimal.Decimal, cur model.Currency) (*model.Payment, error) {
	if s.gateway == nil {
		return nil, upstream("payments are not available", errors.New("payment gateway is not configured"))
	}
	if !currency.Convertible(cur) {
		return nil, invalidOperation(fmt.Sprintf("coins cannot be purchased in %s", cur))
	}
	if err := validation.Amount(coins); err != nil {
		return nil, invalidOperation("coin " + err.Error())
	}

	coinsAC, err := currency.ToAC(coins, cur)
	if err != nil {
		return nil, invalidOperation(err.Error())
	}
	price := coinsAC.Mul(decimal.NewFromInt(s.coinPriceCents)).Ceil().IntPart()

	p := &model.Payment{
		ID:         uuid.New(),
		UserID:     userID,
		Coins:      coins,
		Currency:   cur,
		PriceCents: price,
		Status:     model.PaymentStatusPending,
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Reference:   p.ID.String(),
		AmountCents: price,
		Description: fmt.Sprintf("%s %s", coins.StringFixed(currency.Precision), cur),
	})
	if err != nil {
		s.logger.Error("failed to create checkout session",
			zap.String("user_id", userID.String()), zap.Error(err))
		return nil, upstream("payment gateway is unavailable", err)
	}
	p.ExternalID = session.ID
	p.CheckoutURL = session.URL

	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, s.storeFailure("create payment", err)
	}

	s.logger.Info("deposit started",
		zap.String("payment_id", p.ID.String()),
		zap.String("external_id", p.ExternalID),
		zap.Int64("price_cents", price))
	return p, nil
}

// HandlePaymentEvent применяет подтверждённое событие платёжного шлюза.
// Повторная доставка того же события не зачисляет монеты дважды.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev *payment.Event) error {
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		_, err := s.completePayment(ctx, ev.SessionID)
		return err
	case payment.EventCheckoutExpired:
		return s.finishPayment(ctx, ev.SessionID, model.PaymentStatusExpired)
	case payment.EventCheckoutFailed:
		return s.finishPayment(ctx, ev.SessionID, model.PaymentStatusFailed)
	default:
		s.logger.Debug("ignoring payment event", zap.String("type", ev.Type))
		return nil
	}
}

func (s *Service) completePayment(ctx context.Context, externalID string) (*model.Payment, error) {
	p, completed, err := s.repo.CompletePayment(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, notFound("payment not found")
		}
		return nil, s.storeFailure("complete payment", err)
	}
	if completed {
		s.logger.Info("deposit completed",
			zap.String("payment_id", p.ID.String()),
			zap.String("external_id", externalID))
		s.notifier.Notify(p.UserID, model.NotificationPayment,
			fmt.Sprintf("%s %s were added to your wallet.", p.Coins.StringFixed(currency.Precision), p.Currency))
	}
	return p, nil
}

func (s *Service) finishPayment(ctx context.Context, externalID string, status model.PaymentStatus) error {
	changed, err := s.repo.FinishPayment(ctx, externalID, status)
	if err != nil {
		return s.storeFailure("finish payment", err)
	}
	if changed {
		s.logger.Info("deposit finished without payment",
			zap.String("external_id", externalID), zap.String("status", string(status)))
	}
	return nil
}

// SettlePendingPayments сверяет зависшие платежи со шлюзом: завершает оплаченные,
// закрывает истёкшие и отменённые.
func (s *Service) SettlePendingPayments(ctx context.Context) error {
	if s.gateway == nil {
		return nil
	}

	pending, err := s.repo.GetPendingPayments(ctx, s.now().Add(-paymentGracePeriod), batchSize)
	if err != nil {
		return fmt.Errorf("get pending payments: %w", err)
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		session, err := s.gateway.GetSession(ctx, p.ExternalID)
		if err != nil {
			if errors.Is(err, payment.ErrSessionNotFound) {
				_ = s.finishPayment(ctx, p.ExternalID, model.PaymentStatusFailed)
				continue
			}
			s.logger.Warn("failed to query payment session",
				zap.String("external_id", p.ExternalID), zap.Error(err))
			continue
		}

		switch session.Status {
		case payment.SessionPaid:
			_, err = s.completePayment(ctx, p.ExternalID)
		case payment.SessionExpired:
			err = s.finishPayment(ctx, p.ExternalID, model.PaymentStatusExpired)
		case payment.SessionFailed:
			err = s.finishPayment(ctx, p.ExternalID, model.PaymentStatusFailed)
		}
		if err != nil {
			s.logger.Warn("failed to settle payment",
				zap.String("external_id", p.ExternalID), zap.Error(err))
		}
	}
	return nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID) ([]model.Notification, error) {
	list, err := s.repo.ListNotifications(ctx, userID, notificationsLimit)
	if err != nil {
		return nil, s.storeFailure("list notifications", err)
	}
	return list, nil
}
