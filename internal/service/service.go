// Package service реализует бизнес-логику журнала кампаний: ставки, пожертвования,
// жизненный цикл кампаний, выплаты и кошельки.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/payment"
)

// CampaignStore описывает хранение кампаний, ставок и пожертвований.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, f model.CampaignFilter) ([]model.Campaign, error)
	TransitionCampaign(ctx context.Context, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus, reason model.CloseReason) (*model.Campaign, error)
	CloseExpired(ctx context.Context, id uuid.UUID, now time.Time) (*model.Campaign, bool, error)
	ClaimPayout(ctx context.Context, campaignID, ownerID uuid.UUID, cur model.Currency, payout decimal.Decimal) (time.Time, error)

	RecordBid(ctx context.Context, b *model.Bid) (*model.Campaign, error)
	ListBids(ctx context.Context, campaignID uuid.UUID) ([]model.Bid, error)
	ListRefundableBids(ctx context.Context, campaignID uuid.UUID, winningBidID *uuid.UUID, limit int) ([]model.Bid, error)
	RefundBid(ctx context.Context, bidID uuid.UUID) (bool, error)
	ListCampaignsPendingRefunds(ctx context.Context, limit int) ([]uuid.UUID, error)

	HasDonated(ctx context.Context, campaignID, donorID uuid.UUID) (bool, error)
	RecordDonation(ctx context.Context, d *model.Donation) (*model.Campaign, error)
	ListDonations(ctx context.Context, campaignID uuid.UUID) ([]model.Donation, error)
}

// WalletStore описывает атомарные операции с кошельками.
type WalletStore interface {
	Debit(ctx context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error
	Restore(ctx context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error
	GetWallets(ctx context.Context, userID uuid.UUID) ([]model.Wallet, error)
	CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error
	GetWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]model.Withdrawal, error)
}

// PaymentStore описывает хранение платежей за покупку монет.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	CompletePayment(ctx context.Context, externalID string) (*model.Payment, bool, error)
	FinishPayment(ctx context.Context, externalID string, status model.PaymentStatus) (bool, error)
	GetPendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
}

// NotificationStore описывает хранение уведомлений.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CampaignStore
	WalletStore
	PaymentStore
	NotificationStore
}

// NotificationSink принимает уведомления без ожидания доставки.
type NotificationSink interface {
	Notify(userID uuid.UUID, typ model.NotificationType, message string)
}

// TextGenerator генерирует текст по запросу.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PaymentGateway создаёт и проверяет сессии оплаты.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error)
	GetSession(ctx context.Context, id string) (*payment.Session, error)
}

const (
	batchSize           = 50
	compensationTimeout = 10 * time.Second
	paymentGracePeriod  = 5 * time.Minute
	notificationsLimit  = 100
)

// Service содержит бизнес-логику журнала кампаний.
type Service struct {
	repo           Repository
	logger         *zap.Logger
	notifier       NotificationSink
	textgen        TextGenerator
	gateway        PaymentGateway
	coinPriceCents int64
	now            func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithNotifier задаёт получателя уведомлений.
func WithNotifier(n NotificationSink) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTextGenerator задаёт генератор описаний кампаний.
func WithTextGenerator(g TextGenerator) Option {
	return func(s *Service) { s.textgen = g }
}

// WithPaymentGateway задаёт платёжный шлюз для пополнения кошелька.
func WithPaymentGateway(g PaymentGateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithCoinPrice задаёт цену одной монеты AC в центах.
func WithCoinPrice(cents int64) Option {
	return func(s *Service) { s.coinPriceCents = cents }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		logger:         logger,
		notifier:       discardNotifier{},
		coinPriceCents: 100,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

type discardNotifier struct{}

func (discardNotifier) Notify(uuid.UUID, model.NotificationType, string) {}

// Actor описывает аутентифицированного пользователя, выполняющего действие.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}
