package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *Service
	repo  *memRepo
	notes *recordingNotifier
	clock *testClock
	owner uuid.UUID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := newMemRepo(clock.Now)
	notes := &recordingNotifier{}

	opts = append([]Option{WithNotifier(notes), WithClock(clock.Now)}, opts...)
	return &fixture{
		svc:   NewService(repo, zap.NewNop(), opts...),
		repo:  repo,
		notes: notes,
		clock: clock,
		owner: uuid.New(),
	}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func amountPtr(s string) *decimal.Decimal {
	d := amount(s)
	return &d
}

// activeAuction создаёт активный аукцион напрямую в хранилище.
func (f *fixture) activeAuction(t *testing.T, base string, deadlineIn time.Duration, currencies ...model.Currency) *model.Campaign {
	t.Helper()
	if len(currencies) == 0 {
		currencies = []model.Currency{model.CurrencyAC, model.CurrencyAB}
	}
	deadline := f.clock.Now().Add(deadlineIn)
	c := &model.Campaign{
		ID:                 uuid.New(),
		OwnerID:            f.owner,
		Title:              "Signed guitar",
		Type:               model.CampaignTypeAuction,
		BaseAmount:         amountPtr(base),
		AcceptedCurrencies: currencies,
		Deadline:           &deadline,
		Status:             model.CampaignStatusActive,
		IsApproved:         true,
	}
	require.NoError(t, f.repo.CreateCampaign(context.Background(), c))
	return c
}

// activeFundraiser создаёт активную простую кампанию; пустая цель означает open_ended.
func (f *fixture) activeFundraiser(t *testing.T, goal string, currencies ...model.Currency) *model.Campaign {
	t.Helper()
	if len(currencies) == 0 {
		currencies = []model.Currency{model.CurrencyAC, model.CurrencyAB}
	}
	deadline := f.clock.Now().Add(24 * time.Hour)
	c := &model.Campaign{
		ID:                 uuid.New(),
		OwnerID:            f.owner,
		Title:              "Animal shelter",
		Type:               model.CampaignTypeSimple,
		GoalType:           model.GoalTypeOpenEnded,
		AcceptedCurrencies: currencies,
		Deadline:           &deadline,
		Status:             model.CampaignStatusActive,
		IsApproved:         true,
	}
	if goal != "" {
		c.GoalType = model.GoalTypeFixed
		c.GoalAmount = amountPtr(goal)
	}
	require.NoError(t, f.repo.CreateCampaign(context.Background(), c))
	return c
}

func (f *fixture) bidder(t *testing.T, balanceAC string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.repo.fund(id, model.CurrencyAC, balanceAC)
	return id
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, kind, e.Kind, "unexpected error: %v", err)
	return e
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(newMemRepo(time.Now), nil)

	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.notifier)
	assert.Equal(t, int64(100), svc.coinPriceCents)
	assert.NoError(t, svc.Close())
}

func amountFromInt(i int) decimal.Decimal {
	return decimal.NewFromInt(int64(i))
}
