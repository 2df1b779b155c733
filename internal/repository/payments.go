package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

const paymentColumns = `id, user_id, external_id, coins, currency, price_cents, status, checkout_url, created_at, completed_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p           model.Payment
		coins       int64
		cur, status string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.ExternalID, &coins, &cur, &p.PriceCents, &status,
		&p.CheckoutURL, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	p.Coins = currency.FromCents(coins)
	p.Currency = model.Currency(cur)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

// CreatePayment сохраняет новый платёж в статусе pending.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, user_id, external_id, coins, currency, price_cents, status, checkout_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		p.ID, p.UserID, p.ExternalID, currency.ToCents(p.Coins), string(p.Currency), p.PriceCents,
		string(p.Status), p.CheckoutURL,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// CompletePayment переводит платёж в completed и зачисляет монеты на кошелёк.
// Идемпотентен по externalID: повторное подтверждение возвращает false без зачисления.
func (r *PostgresRepository) CompletePayment(ctx context.Context, externalID string) (*model.Payment, bool, error) {
	var (
		payment   *model.Payment
		completed bool
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx,
			`UPDATE payments SET status = 'completed', completed_at = now()
			 WHERE external_id = $1 AND status = 'pending'
			 RETURNING `+paymentColumns,
			externalID,
		))
		if err == nil {
			payment, completed = p, true
			return credit(ctx, tx, p.UserID, p.Currency, p.Coins)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("complete payment: %w", err)
		}

		p, err = scanPayment(tx.QueryRow(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE external_id = $1`, externalID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("get payment: %w", err)
		}
		payment, completed = p, false
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payment, completed, nil
}

// FinishPayment переводит ожидающий платёж в конечный статус без зачисления.
func (r *PostgresRepository) FinishPayment(ctx context.Context, externalID string, status model.PaymentStatus) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, completed_at = now()
		 WHERE external_id = $1 AND status = 'pending'`,
		externalID, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("finish payment: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// GetPendingPayments возвращает ожидающие платежи, созданные раньше before.
func (r *PostgresRepository) GetPendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
