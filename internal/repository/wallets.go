package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

// debit списывает сумму, только если на кошельке достаточно средств.
func debit(ctx context.Context, q querier, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	cmdTag, err := q.Exec(ctx,
		`UPDATE wallets
		 SET available = available - $3, spent = spent + $3, updated_at = now()
		 WHERE user_id = $1 AND currency = $2 AND available >= $3`,
		userID, string(cur), currency.ToCents(amount),
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// credit зачисляет доход на кошелёк, создавая его при необходимости.
func credit(ctx context.Context, q querier, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	cents := currency.ToCents(amount)
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (user_id, currency, available, earned)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id, currency) DO UPDATE
		 SET available = wallets.available + EXCLUDED.available,
		     earned = wallets.earned + EXCLUDED.earned,
		     updated_at = now()`,
		userID, string(cur), cents,
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// restore возвращает ранее списанную сумму: возвраты ставок и компенсации.
func restore(ctx context.Context, q querier, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	cents := currency.ToCents(amount)
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (user_id, currency, available)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, currency) DO UPDATE
		 SET available = wallets.available + EXCLUDED.available,
		     spent = GREATEST(wallets.spent - EXCLUDED.available, 0),
		     updated_at = now()`,
		userID, string(cur), cents,
	)
	if err != nil {
		return fmt.Errorf("restore wallet: %w", err)
	}
	return nil
}

// Debit атомарно списывает сумму с кошелька пользователя.
func (r *PostgresRepository) Debit(ctx context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		return debit(ctx, r.pool, userID, cur, amount)
	})
}

// Credit зачисляет сумму на кошелёк пользователя.
func (r *PostgresRepository) Credit(ctx context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		return credit(ctx, r.pool, userID, cur, amount)
	})
}

// Restore возвращает на кошелёк ранее списанную сумму.
func (r *PostgresRepository) Restore(ctx context.Context, userID uuid.UUID, cur model.Currency, amount decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		return restore(ctx, r.pool, userID, cur, amount)
	})
}

// GetWallets возвращает все кошельки пользователя.
func (r *PostgresRepository) GetWallets(ctx context.Context, userID uuid.UUID) ([]model.Wallet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT currency, available, spent, earned, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 ORDER BY currency`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	defer rows.Close()

	var res []model.Wallet
	for rows.Next() {
		var (
			cur                      string
			available, spent, earned int64
			updatedAt                time.Time
		)
		if err := rows.Scan(&cur, &available, &spent, &earned, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}

		res = append(res, model.Wallet{
			UserID:    userID,
			Currency:  model.Currency(cur),
			Available: currency.FromCents(available),
			Spent:     currency.FromCents(spent),
			Earned:    currency.FromCents(earned),
			UpdatedAt: updatedAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateWithdrawal создаёт запись о выводе средств. Списание и запись выполняются в одной
// транзакции, условное обновление баланса сериализует параллельные выводы.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := debit(ctx, tx, w.UserID, w.Currency, w.Amount); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO withdrawals (id, user_id, amount, currency, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			w.ID, w.UserID, currency.ToCents(w.Amount), string(w.Currency), string(w.Status),
		).Scan(&w.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
}

// GetWithdrawalsByUser возвращает историю выводов пользователя.
func (r *PostgresRepository) GetWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, amount, currency, status, created_at
		 FROM withdrawals
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	defer rows.Close()

	var res []model.Withdrawal
	for rows.Next() {
		var (
			w           model.Withdrawal
			amountCents int64
			cur, status string
		)

		if err := rows.Scan(&w.ID, &amountCents, &cur, &status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}

		w.UserID = userID
		w.Amount = currency.FromCents(amountCents)
		w.Currency = model.Currency(cur)
		w.Status = model.WithdrawalStatus(status)
		res = append(res, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
