// Package model содержит доменные сущности сервиса кампаний.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency обозначает тип виртуальной валюты кошелька.
type Currency string

const (
	CurrencyAC Currency = "AC"
	CurrencyAB Currency = "AB"
	// CurrencySP (SoulPoints) существуют только на кошельке и не участвуют в кампаниях.
	CurrencySP Currency = "SP"
)

// ParseCurrency приводит строку к известной валюте.
func ParseCurrency(s string) (Currency, bool) {
	switch c := Currency(s); c {
	case CurrencyAC, CurrencyAB, CurrencySP:
		return c, true
	default:
		return "", false
	}
}

// Bid описывает ставку в аукционной кампании.
type Bid struct {
	ID         uuid.UUID       `json:"id"`
	CampaignID uuid.UUID       `json:"campaign_id"`
	BidderID   uuid.UUID       `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   Currency        `json:"currency"`
	AmountAC   decimal.Decimal `json:"amount_ac"`
	IsRefunded bool            `json:"is_refunded"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Donation описывает пожертвование в простую кампанию.
type Donation struct {
	ID                 uuid.UUID       `json:"id"`
	CampaignID         uuid.UUID       `json:"campaign_id"`
	DonorID            uuid.UUID       `json:"donor_id"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           Currency        `json:"currency"`
	AmountAC           decimal.Decimal `json:"amount_ac"`
	AnonymouslyDonated bool            `json:"anonymously_donated"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Wallet содержит баланс пользователя в одной валюте.
type Wallet struct {
	UserID    uuid.UUID       `json:"user_id"`
	Currency  Currency        `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Spent     decimal.Decimal `json:"spent"`
	Earned    decimal.Decimal `json:"earned"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WithdrawalStatus описывает статус заявки на вывод.
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusProcessed WithdrawalStatus = "processed"
)

// Withdrawal описывает факт списания средств с кошелька на вывод.
type Withdrawal struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  Currency         `json:"currency"`
	Status    WithdrawalStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// PaymentStatus описывает статус оплаты через платёжный шлюз.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// Payment описывает покупку монет за реальные деньги.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	ExternalID  string          `json:"external_id"`
	Coins       decimal.Decimal `json:"coins"`
	Currency    Currency        `json:"currency"`
	PriceCents  int64           `json:"price_cents"`
	Status      PaymentStatus   `json:"status"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NotificationType классифицирует уведомления пользователю.
type NotificationType string

const (
	NotificationGoalReached    NotificationType = "goal_reached"
	NotificationAuctionWon     NotificationType = "auction_won"
	NotificationOutbid         NotificationType = "outbid"
	NotificationCampaignClosed NotificationType = "campaign_closed"
	NotificationRefund         NotificationType = "refund"
	NotificationPayment        NotificationType = "payment"
)

// Notification описывает сохранённое уведомление пользователя.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
