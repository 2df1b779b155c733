package scheduler

import (
	"context"
	"time"
)

// RefundRetrier повторяет возвраты проигравших ставок.
type RefundRetrier interface {
	RetryPendingRefunds(ctx context.Context) error
}

// PaymentSettler сверяет зависшие платежи со шлюзом.
type PaymentSettler interface {
	SettlePendingPayments(ctx context.Context) error
}

// RefundRetryJob возвращает ставки закрытых аукционов, возврат которых не удался
// при закрытии или выплате.
type RefundRetryJob struct {
	svc      RefundRetrier
	interval time.Duration
}

// NewRefundRetryJob создаёт задачу повторных возвратов.
func NewRefundRetryJob(svc RefundRetrier, interval time.Duration) *RefundRetryJob {
	return &RefundRetryJob{svc: svc, interval: interval}
}

func (j *RefundRetryJob) Name() string            { return "refund_retry" }
func (j *RefundRetryJob) Interval() time.Duration { return j.interval }

func (j *RefundRetryJob) Execute(ctx context.Context) error {
	return j.svc.RetryPendingRefunds(ctx)
}

// PaymentSettlementJob завершает платежи, подтверждение которых не дошло через вебхук.
type PaymentSettlementJob struct {
	svc      PaymentSettler
	interval time.Duration
}

// NewPaymentSettlementJob создаёт задачу сверки платежей.
func NewPaymentSettlementJob(svc PaymentSettler, interval time.Duration) *PaymentSettlementJob {
	return &PaymentSettlementJob{svc: svc, interval: interval}
}

func (j *PaymentSettlementJob) Name() string            { return "pending_payment_settlement" }
func (j *PaymentSettlementJob) Interval() time.Duration { return j.interval }

func (j *PaymentSettlementJob) Execute(ctx context.Context) error {
	return j.svc.SettlePendingPayments(ctx)
}
