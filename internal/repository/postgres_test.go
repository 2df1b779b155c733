package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/campaign-ledger/internal/model"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("update: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "other", err: errors.New("syntax error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
	assert.False(t, isUniqueViolation(errors.New("plain")))
}

func TestWithRetry(t *testing.T) {
	r := &PostgresRepository{retryDelay: []time.Duration{time.Millisecond, time.Millisecond}}

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after all delays", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry business errors", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return ErrInsufficientBalance
		})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := r.withRetry(ctx, func() error {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// newTestRepository подключается к базе из TEST_DATABASE_URI; без неё тест пропускается.
func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	r, err := NewPostgresRepository(dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newAuction(t *testing.T, r *PostgresRepository, base int64) *model.Campaign {
	t.Helper()

	baseAmount := decimal.NewFromInt(base)
	deadline := time.Now().Add(time.Hour)
	c := &model.Campaign{
		ID:                 uuid.New(),
		OwnerID:            uuid.New(),
		Title:              "Signed guitar",
		Type:               model.CampaignTypeAuction,
		BaseAmount:         &baseAmount,
		AcceptedCurrencies: []model.Currency{model.CurrencyAC, model.CurrencyAB},
		Deadline:           &deadline,
		Status:             model.CampaignStatusActive,
		IsApproved:         true,
	}
	require.NoError(t, r.CreateCampaign(context.Background(), c))
	return c
}

func TestPostgres_BidsAreMonotonic(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	c := newAuction(t, r, 10)

	bid := func(amount int64) error {
		_, err := r.RecordBid(ctx, &model.Bid{
			ID:         uuid.New(),
			CampaignID: c.ID,
			BidderID:   uuid.New(),
			Amount:     decimal.NewFromInt(amount),
			Currency:   model.CurrencyAC,
			AmountAC:   decimal.NewFromInt(amount),
		})
		return err
	}

	require.ErrorIs(t, bid(10), ErrBidOutbid)
	require.NoError(t, bid(15))
	require.ErrorIs(t, bid(12), ErrBidOutbid)
	require.NoError(t, bid(16))

	got, err := r.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.HighestBid)
	assert.True(t, got.HighestBid.Equal(decimal.NewFromInt(16)))

	bids, err := r.ListBids(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 2, "rejected bids must roll back")
}

func TestPostgres_DebitIsConditional(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, r.Credit(ctx, user, model.CurrencyAC, decimal.NewFromInt(10)))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Debit(ctx, user, model.CurrencyAC, decimal.NewFromInt(3))
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrInsufficientBalance)
	}
	assert.Equal(t, 3, ok)

	wallets, err := r.GetWallets(ctx, user)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].Available.Equal(decimal.NewFromInt(1)))
}

func TestPostgres_ClaimPayoutOnce(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	c := newAuction(t, r, 1)

	_, err := r.TransitionCampaign(ctx, c.ID, []model.CampaignStatus{model.CampaignStatusActive}, model.CampaignStatusClosed, model.CloseReasonManual)
	require.NoError(t, err)

	_, err = r.ClaimPayout(ctx, c.ID, c.OwnerID, model.CurrencyAC, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = r.ClaimPayout(ctx, c.ID, c.OwnerID, model.CurrencyAC, decimal.NewFromInt(5))
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	wallets, err := r.GetWallets(ctx, c.OwnerID)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].Available.Equal(decimal.NewFromInt(5)))
}

func TestPostgres_CompletePaymentIdempotent(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	user := uuid.New()
	externalID := "cs_" + uuid.NewString()

	require.NoError(t, r.CreatePayment(ctx, &model.Payment{
		ID:         uuid.New(),
		UserID:     user,
		ExternalID: externalID,
		Coins:      decimal.NewFromInt(20),
		Currency:   model.CurrencyAB,
		PriceCents: 1000,
		Status:     model.PaymentStatusPending,
	}))

	_, completed, err := r.CompletePayment(ctx, externalID)
	require.NoError(t, err)
	assert.True(t, completed)

	_, completed, err = r.CompletePayment(ctx, externalID)
	require.NoError(t, err)
	assert.False(t, completed)

	_, _, err = r.CompletePayment(ctx, "cs_missing_"+uuid.NewString())
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	wallets, err := r.GetWallets(ctx, user)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.True(t, wallets[0].Available.Equal(decimal.NewFromInt(20)))
}
