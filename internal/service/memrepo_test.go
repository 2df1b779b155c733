package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
)

type walletKey struct {
	user uuid.UUID
	cur  model.Currency
}

// memRepo хранит данные в памяти и повторяет условные записи Postgres-хранилища.
type memRepo struct {
	mu sync.Mutex

	campaigns     map[uuid.UUID]*model.Campaign
	order         []uuid.UUID
	bids          []model.Bid
	donations     []model.Donation
	wallets       map[walletKey]*model.Wallet
	withdrawals   []model.Withdrawal
	payments      map[string]*model.Payment
	notifications []model.Notification

	now func() time.Time

	recordBidErr      error
	recordDonationErr error
	restoreErr        error
	refundErr         map[uuid.UUID]error
	restoreCalls      int
}

func newMemRepo(now func() time.Time) *memRepo {
	return &memRepo{
		campaigns: make(map[uuid.UUID]*model.Campaign),
		wallets:   make(map[walletKey]*model.Wallet),
		payments:  make(map[string]*model.Payment),
		refundErr: make(map[uuid.UUID]error),
		now:       now,
	}
}

func clone(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.AcceptedCurrencies = slices.Clone(c.AcceptedCurrencies)
	return &cp
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) CreateCampaign(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.CreatedAt = r.now()
	c.UpdatedAt = c.CreatedAt
	r.campaigns[c.ID] = clone(c)
	r.order = append(r.order, c.ID)
	return nil
}

func (r *memRepo) GetCampaign(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	return clone(c), nil
}

func (r *memRepo) ListCampaigns(_ context.Context, f model.CampaignFilter) ([]model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Campaign
	for i := len(r.order) - 1; i >= 0; i-- {
		c := r.campaigns[r.order[i]]
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		if f.OwnerID != nil && c.OwnerID != *f.OwnerID {
			continue
		}
		res = append(res, *clone(c))
	}
	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[f.Offset:]
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (r *memRepo) TransitionCampaign(_ context.Context, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus, reason model.CloseReason) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || !slices.Contains(from, c.Status) {
		return nil, repository.ErrStatusConflict
	}
	c.Status = to
	if to == model.CampaignStatusActive {
		c.IsApproved = true
	}
	if to == model.CampaignStatusClosed && reason != "" {
		c.ClosedReason = reason
	}
	c.UpdatedAt = r.now()
	return clone(c), nil
}

func (r *memRepo) CloseExpired(_ context.Context, id uuid.UUID, now time.Time) (*model.Campaign, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status == model.CampaignStatusClosed || c.Deadline == nil || c.Deadline.After(now) {
		return nil, false, nil
	}
	c.Status = model.CampaignStatusClosed
	c.ClosedReason = model.CloseReasonDeadline
	return clone(c), true, nil
}

func (r *memRepo) ClaimPayout(_ context.Context, campaignID, ownerID uuid.UUID, cur model.Currency, payout decimal.Decimal) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok || c.OwnerID != ownerID || c.Status != model.CampaignStatusClosed || c.IsClaimed {
		return time.Time{}, repository.ErrAlreadyClaimed
	}
	at := r.now()
	c.IsClaimed = true
	c.ClaimedAt = &at
	w := r.wallet(ownerID, cur)
	w.Available = w.Available.Add(payout)
	w.Earned = w.Earned.Add(payout)
	return at, nil
}

func (r *memRepo) RecordBid(_ context.Context, b *model.Bid) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordBidErr != nil {
		return nil, r.recordBidErr
	}
	c, ok := r.campaigns[b.CampaignID]
	if !ok || c.Type != model.CampaignTypeAuction || c.Status != model.CampaignStatusActive {
		return nil, repository.ErrBidOutbid
	}
	if c.Deadline != nil && !c.Deadline.After(r.now()) {
		return nil, repository.ErrBidOutbid
	}
	floor := decimal.Zero
	switch {
	case c.HighestBid != nil:
		floor = *c.HighestBid
	case c.BaseAmount != nil:
		floor = *c.BaseAmount
	}
	if !floor.LessThan(b.AmountAC) {
		return nil, repository.ErrBidOutbid
	}

	b.CreatedAt = r.now()
	r.bids = append(r.bids, *b)

	amount, bidder, bidID := b.AmountAC, b.BidderID, b.ID
	c.HighestBid = &amount
	c.CurrentWinnerID = &bidder
	c.WinningBidID = &bidID
	return clone(c), nil
}

func (r *memRepo) ListBids(_ context.Context, campaignID uuid.UUID) ([]model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Bid
	for i := len(r.bids) - 1; i >= 0; i-- {
		if r.bids[i].CampaignID == campaignID {
			res = append(res, r.bids[i])
		}
	}
	return res, nil
}

func (r *memRepo) ListRefundableBids(_ context.Context, campaignID uuid.UUID, winningBidID *uuid.UUID, limit int) ([]model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Bid
	for _, b := range r.bids {
		if b.CampaignID != campaignID || b.IsRefunded {
			continue
		}
		if winningBidID != nil && b.ID == *winningBidID {
			continue
		}
		res = append(res, b)
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

func (r *memRepo) RefundBid(_ context.Context, bidID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refundErr[bidID]; err != nil {
		return false, err
	}
	for i := range r.bids {
		b := &r.bids[i]
		if b.ID != bidID {
			continue
		}
		if b.IsRefunded {
			return false, nil
		}
		b.IsRefunded = true
		r.restore(b.BidderID, model.CurrencyAC, b.AmountAC)
		return true, nil
	}
	return false, nil
}

func (r *memRepo) ListCampaignsPendingRefunds(_ context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range r.order {
		c := r.campaigns[id]
		if c.Type != model.CampaignTypeAuction || c.Status != model.CampaignStatusClosed {
			continue
		}
		for _, b := range r.bids {
			if b.CampaignID == id && !b.IsRefunded && (c.WinningBidID == nil || b.ID != *c.WinningBidID) {
				ids = append(ids, id)
				break
			}
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (r *memRepo) HasDonated(_ context.Context, campaignID, donorID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.donations {
		if d.CampaignID == campaignID && d.DonorID == donorID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) RecordDonation(_ context.Context, d *model.Donation) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordDonationErr != nil {
		return nil, r.recordDonationErr
	}
	for _, existing := range r.donations {
		if existing.CampaignID == d.CampaignID && existing.DonorID == d.DonorID {
			return nil, repository.ErrAlreadyDonated
		}
	}
	c, ok := r.campaigns[d.CampaignID]
	if !ok || c.Type != model.CampaignTypeSimple || c.Status != model.CampaignStatusActive {
		return nil, repository.ErrStatusConflict
	}
	if c.Deadline != nil && !c.Deadline.After(r.now()) {
		return nil, repository.ErrStatusConflict
	}

	d.CreatedAt = r.now()
	r.donations = append(r.donations, *d)

	c.TotalDonations = c.TotalDonations.Add(d.AmountAC)
	switch d.Currency {
	case model.CurrencyAC:
		c.TotalDonationsAC = c.TotalDonationsAC.Add(d.Amount)
	case model.CurrencyAB:
		c.TotalDonationsAB = c.TotalDonationsAB.Add(d.Amount)
	}
	return clone(c), nil
}

func (r *memRepo) ListDonations(_ context.Context, campaignID uuid.UUID) ([]model.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Donation
	for i := len(r.donations) - 1; i >= 0; i-- {
		if r.donations[i].CampaignID == campaignID {
			res = append(res, r.donations[i])
		}
	}
	return res, nil
}

func (r *memRepo) wallet(userID uuid.UUID, cur model.Currency) *model.Wallet {
	k := walletKey{userID, cur}
	w, ok := r.wallets[k]
	if !ok {
		w = &model.Wallet{UserID: userID, Currency: cur}
		r.wallets[k] = w
	}
	return w
}

func (r *memRepo) debit(userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	w, ok := r.wallets[walletKey{userID, cur}]
	if !ok || w.Available.LessThan(amount) {
		return repository.ErrInsufficientBalance
	}
	w.Available = w.Available.Sub(amount)
	w.Spent = w.Spent.Add(amount)
	return nil
}

func (r *memRepo) restore(userID uuid.UUID, cur model.Currency, amount decimal.Decimal) {
	w := r.wallet(userID, cur)
	w.Available = w.Available.Add(amount)
	w.Spent = decimal.Max(w.Spent.Sub(amount), decimal.Zero)
}

func (r *memRepo) Debit(_ context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.debit(userID, cur, amount)
}

func (r *memRepo) Restore(_ context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreCalls++
	if r.restoreErr != nil {
		return r.restoreErr
	}
	r.restore(userID, cur, amount)
	return nil
}

func (r *memRepo) GetWallets(_ context.Context, userID uuid.UUID) ([]model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Wallet
	for k, w := range r.wallets {
		if k.user == userID {
			res = append(res, *w)
		}
	}
	return res, nil
}

func (r *memRepo) CreateWithdrawal(_ context.Context, w *model.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.debit(w.UserID, w.Currency, w.Amount); err != nil {
		return err
	}
	w.CreatedAt = r.now()
	r.withdrawals = append(r.withdrawals, *w)
	return nil
}

func (r *memRepo) GetWithdrawalsByUser(_ context.Context, userID uuid.UUID) ([]model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Withdrawal
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			res = append(res, w)
		}
	}
	return res, nil
}

func (r *memRepo) CreatePayment(_ context.Context, p *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.CreatedAt = r.now()
	cp := *p
	r.payments[p.ExternalID] = &cp
	return nil
}

func (r *memRepo) CompletePayment(_ context.Context, externalID string) (*model.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[externalID]
	if !ok {
		return nil, false, repository.ErrPaymentNotFound
	}
	if p.Status != model.PaymentStatusPending {
		cp := *p
		return &cp, false, nil
	}
	at := r.now()
	p.Status = model.PaymentStatusCompleted
	p.CompletedAt = &at
	w := r.wallet(p.UserID, p.Currency)
	w.Available = w.Available.Add(p.Coins)
	w.Earned = w.Earned.Add(p.Coins)
	cp := *p
	return &cp, true, nil
}

func (r *memRepo) FinishPayment(_ context.Context, externalID string, status model.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[externalID]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	return true, nil
}

func (r *memRepo) GetPendingPayments(_ context.Context, before time.Time, limit int) ([]model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Payment
	for _, p := range r.payments {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(before) {
			res = append(res, *p)
		}
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

func (r *memRepo) CreateNotification(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.CreatedAt = r.now()
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r *memRepo) ListNotifications(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Notification
	for i := len(r.notifications) - 1; i >= 0 && len(res) < limit; i-- {
		if r.notifications[i].UserID == userID {
			res = append(res, r.notifications[i])
		}
	}
	return res, nil
}

// fund пополняет кошелёк для теста.
func (r *memRepo) fund(userID uuid.UUID, cur model.Currency, amount string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.wallet(userID, cur)
	w.Available = w.Available.Add(decimal.RequireFromString(amount))
}

func (r *memRepo) balance(userID uuid.UUID, cur model.Currency) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletKey{userID, cur}]
	if !ok {
		return decimal.Zero
	}
	return w.Available
}

// recordingNotifier запоминает уведомления синхронно.
type recordingNotifier struct {
	mu    sync.Mutex
	items []model.Notification
}

func (n *recordingNotifier) Notify(userID uuid.UUID, typ model.NotificationType, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, model.Notification{UserID: userID, Type: typ, Message: message})
}

func (n *recordingNotifier) count(userID uuid.UUID, typ model.NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, it := range n.items {
		if it.UserID == userID && it.Type == typ {
			c++
		}
	}
	return c
}
