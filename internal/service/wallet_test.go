package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/campaign-ledger/internal/model"
	"github.com/mmeshcher/campaign-ledger/internal/payment"
)

type stubGateway struct {
	created  []payment.CheckoutRequest
	sessions map[string]*payment.Session
	err      error
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, req)
	s := &payment.Session{
		ID:        "cs_" + req.Reference,
		Status:    payment.SessionOpen,
		URL:       "https://pay.example/" + req.Reference,
		Reference: req.Reference,
	}
	g.sessions[s.ID] = s
	return s, nil
}

func (g *stubGateway) GetSession(_ context.Context, id string) (*payment.Session, error) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return s, nil
}

func TestGetWalletsFillsMissingCurrencies(t *testing.T) {
	f := newFixture(t)
	user := f.bidder(t, "12.5")

	wallets, err := f.svc.GetWallets(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, wallets, 3)

	assert.Equal(t, model.CurrencyAC, wallets[0].Currency)
	assert.True(t, wallets[0].Available.Equal(amount("12.5")))
	assert.Equal(t, model.CurrencyAB, wallets[1].Currency)
	assert.True(t, wallets[1].Available.IsZero())
	assert.Equal(t, model.CurrencySP, wallets[2].Currency)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.bidder(t, "50")

	w, err := f.svc.Withdraw(ctx, user, amount("20"), model.CurrencyAC)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPending, w.Status)
	assert.True(t, f.repo.balance(user, model.CurrencyAC).Equal(amount("30")))

	_, err = f.svc.Withdraw(ctx, user, amount("31"), model.CurrencyAC)
	e := requireKind(t, err, KindRejected)
	assert.Equal(t, "insufficient balance", e.Message)
	assert.True(t, f.repo.balance(user, model.CurrencyAC).Equal(amount("30")))

	_, err = f.svc.Withdraw(ctx, user, amount("-1"), model.CurrencyAC)
	requireKind(t, err, KindInvalidOperation)

	_, err = f.svc.Withdraw(ctx, user, amount("0.004"), model.CurrencyAC)
	e = requireKind(t, err, KindInvalidOperation)
	assert.Equal(t, "withdraw amount must have at most 2 decimal places", e.Message)
	assert.True(t, f.repo.balance(user, model.CurrencyAC).Equal(amount("30")))

	_, err = f.svc.Withdraw(ctx, user, amount("1"), model.CurrencySP)
	requireKind(t, err, KindInvalidOperation)

	list, err := f.svc.GetWithdrawals(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDepositFlow(t *testing.T) {
	gw := &stubGateway{sessions: map[string]*payment.Session{}}
	f := newFixture(t, WithPaymentGateway(gw), WithCoinPrice(150))
	ctx := context.Background()
	user := uuid.New()

	p, err := f.svc.StartDeposit(ctx, user, amount("20"), model.CurrencyAB)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
	assert.Equal(t, int64(1500), p.PriceCents)
	assert.NotEmpty(t, p.CheckoutURL)
	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(1500), gw.created[0].AmountCents)

	ev := &payment.Event{Type: payment.EventCheckoutCompleted, SessionID: p.ExternalID}
	require.NoError(t, f.svc.HandlePaymentEvent(ctx, ev))
	require.NoError(t, f.svc.HandlePaymentEvent(ctx, ev))

	assert.True(t, f.repo.balance(user, model.CurrencyAB).Equal(amount("20")), "redelivered event must not credit twice")
	assert.Equal(t, 1, f.notes.count(user, model.NotificationPayment))

	err = f.svc.HandlePaymentEvent(ctx, &payment.Event{Type: payment.EventCheckoutCompleted, SessionID: "cs_unknown"})
	requireKind(t, err, KindNotFound)
}

func TestStartDepositErrors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	_, err := f.svc.StartDeposit(ctx, uuid.New(), amount("10"), model.CurrencyAC)
	requireKind(t, err, KindUpstream)

	gw := &stubGateway{sessions: map[string]*payment.Session{}, err: errors.New("timeout")}
	f = newFixture(t, WithPaymentGateway(gw))
	_, err = f.svc.StartDeposit(ctx, uuid.New(), amount("10"), model.CurrencyAC)
	requireKind(t, err, KindUpstream)

	gw.err = nil
	_, err = f.svc.StartDeposit(ctx, uuid.New(), amount("0"), model.CurrencyAC)
	requireKind(t, err, KindInvalidOperation)
	_, err = f.svc.StartDeposit(ctx, uuid.New(), amount("5"), model.CurrencySP)
	requireKind(t, err, KindInvalidOperation)
	_, err = f.svc.StartDeposit(ctx, uuid.New(), amount("15.005"), model.CurrencyAC)
	e := requireKind(t, err, KindInvalidOperation)
	assert.Equal(t, "coin amount must have at most 2 decimal places", e.Message)
	assert.Empty(t, gw.created)
}

func TestSettlePendingPayments(t *testing.T) {
	gw := &stubGateway{sessions: map[string]*payment.Session{}}
	f := newFixture(t, WithPaymentGateway(gw))
	ctx := context.Background()

	paid := uuid.New()
	expired := uuid.New()
	open := uuid.New()

	pPaid, err := f.svc.StartDeposit(ctx, paid, amount("5"), model.CurrencyAC)
	require.NoError(t, err)
	pExpired, err := f.svc.StartDeposit(ctx, expired, amount("5"), model.CurrencyAC)
	require.NoError(t, err)
	pOpen, err := f.svc.StartDeposit(ctx, open, amount("5"), model.CurrencyAC)
	require.NoError(t, err)

	gw.sessions[pPaid.ExternalID].Status = payment.SessionPaid
	gw.sessions[pExpired.ExternalID].Status = payment.SessionExpired

	require.NoError(t, f.svc.SettlePendingPayments(ctx))
	assert.True(t, f.repo.balance(paid, model.CurrencyAC).IsZero(), "payments inside the grace period are left alone")

	f.clock.Advance(2 * paymentGracePeriod)
	require.NoError(t, f.svc.SettlePendingPayments(ctx))

	assert.True(t, f.repo.balance(paid, model.CurrencyAC).Equal(amount("5")))
	assert.True(t, f.repo.balance(expired, model.CurrencyAC).IsZero())
	assert.Equal(t, model.PaymentStatusExpired, f.repo.payments[pExpired.ExternalID].Status)
	assert.Equal(t, model.PaymentStatusPending, f.repo.payments[pOpen.ExternalID].Status)
}
