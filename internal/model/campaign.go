package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignType различает простые сборы и аукционы.
type CampaignType string

const (
	CampaignTypeSimple  CampaignType = "simple_donation"
	CampaignTypeAuction CampaignType = "auction_donation"
)

// GoalType определяет, есть ли у простой кампании фиксированная цель.
type GoalType string

const (
	GoalTypeFixed     GoalType = "fixed"
	GoalTypeOpenEnded GoalType = "open_ended"
)

// CampaignStatus описывает состояние кампании.
type CampaignStatus string

const (
	CampaignStatusPendingApproval CampaignStatus = "pending_approval"
	CampaignStatusActive          CampaignStatus = "active"
	CampaignStatusPaused          CampaignStatus = "paused"
	CampaignStatusClosed          CampaignStatus = "closed"
)

// CloseReason фиксирует причину закрытия кампании.
type CloseReason string

const (
	CloseReasonManual      CloseReason = "manual"
	CloseReasonAdmin       CloseReason = "admin"
	CloseReasonDeadline    CloseReason = "deadline"
	CloseReasonGoalReached CloseReason = "goal_reached"
)

// Transition описывает действие, переводящее кампанию в другое состояние.
type Transition string

const (
	TransitionApprove  Transition = "approve"
	TransitionPause    Transition = "pause"
	TransitionActivate Transition = "activate"
	TransitionClose    Transition = "close"
)

var transitions = map[Transition]struct {
	from []CampaignStatus
	to   CampaignStatus
}{
	TransitionApprove:  {from: []CampaignStatus{CampaignStatusPendingApproval}, to: CampaignStatusActive},
	TransitionPause:    {from: []CampaignStatus{CampaignStatusActive}, to: CampaignStatusPaused},
	TransitionActivate: {from: []CampaignStatus{CampaignStatusPaused}, to: CampaignStatusActive},
	TransitionClose:    {from: []CampaignStatus{CampaignStatusActive, CampaignStatusPaused}, to: CampaignStatusClosed},
}

// Apply возвращает целевое состояние перехода и допустимые исходные состояния.
// ok == false, если переход из текущего состояния запрещён.
func (t Transition) Apply(current CampaignStatus) (to CampaignStatus, from []CampaignStatus, ok bool) {
	rule, known := transitions[t]
	if !known {
		return "", nil, false
	}
	return rule.to, rule.from, slices.Contains(rule.from, current)
}

// Campaign описывает кампанию сбора средств или аукцион.
type Campaign struct {
	ID                 uuid.UUID        `json:"id"`
	OwnerID            uuid.UUID        `json:"owner_id"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Type               CampaignType     `json:"campaign_type"`
	GoalType           GoalType         `json:"goal_type,omitempty"`
	GoalAmount         *decimal.Decimal `json:"goal_amount,omitempty"`
	BaseAmount         *decimal.Decimal `json:"base_amount,omitempty"`
	AcceptedCurrencies []Currency       `json:"accepted_currencies"`
	Deadline           *time.Time       `json:"deadline,omitempty"`
	Status             CampaignStatus   `json:"status"`
	IsApproved         bool             `json:"is_approved"`
	ClosedReason       CloseReason      `json:"closed_reason,omitempty"`
	TotalDonations     decimal.Decimal  `json:"total_donations"`
	TotalDonationsAC   decimal.Decimal  `json:"total_donations_ac"`
	TotalDonationsAB   decimal.Decimal  `json:"total_donations_ab"`
	HighestBid         *decimal.Decimal `json:"highest_bid,omitempty"`
	CurrentWinnerID    *uuid.UUID       `json:"current_winner_id,omitempty"`
	WinningBidID       *uuid.UUID       `json:"winning_bid_id,omitempty"`
	IsClaimed          bool             `json:"is_claimed"`
	ClaimedAt          *time.Time       `json:"claimed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Accepts сообщает, принимает ли кампания указанную валюту.
func (c *Campaign) Accepts(cur Currency) bool {
	return slices.Contains(c.AcceptedCurrencies, cur)
}

// Expired сообщает, что дедлайн наступил, а кампания ещё не закрыта.
func (c *Campaign) Expired(now time.Time) bool {
	return c.Deadline != nil && !c.Deadline.After(now) && c.Status != CampaignStatusClosed
}

// IsOwner проверяет, что пользователь владеет кампанией.
func (c *Campaign) IsOwner(userID uuid.UUID) bool {
	return c.OwnerID == userID
}

// CampaignFilter задаёт условия выборки списка кампаний.
type CampaignFilter struct {
	Status  CampaignStatus
	Type    CampaignType
	OwnerID *uuid.UUID
	Limit   int
	Offset  int
}
