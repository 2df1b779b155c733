package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

// RecordBid сохраняет ставку и обновляет лидера аукциона. Обновление условное:
// ставка принимается, только если её AC-эквивалент строго больше текущей максимальной
// (или базовой суммы), кампания активна и дедлайн не наступил. Иначе ErrBidOutbid.
func (r *PostgresRepository) RecordBid(ctx context.Context, b *model.Bid) (*model.Campaign, error) {
	var updated *model.Campaign

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO bids (id, campaign_id, bidder_id, amount, currency, amount_ac)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			b.ID, b.CampaignID, b.BidderID, currency.ToCents(b.Amount), string(b.Currency), currency.ToCents(b.AmountAC),
		).Scan(&b.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}

		c, err := scanCampaign(tx.QueryRow(ctx,
			`UPDATE campaigns
			 SET highest_bid = $2, current_winner_id = $3, winning_bid_id = $4, updated_at = now()
			 WHERE id = $1
			   AND campaign_type = 'auction_donation'
			   AND status = 'active'
			   AND (deadline IS NULL OR deadline > now())
			   AND COALESCE(highest_bid, base_amount, 0) < $2
			 RETURNING `+campaignColumns,
			b.CampaignID, currency.ToCents(b.AmountAC), b.BidderID, b.ID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBidOutbid
			}
			return fmt.Errorf("update highest bid: %w", err)
		}

		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

const bidColumns = `id, campaign_id, bidder_id, amount, currency, amount_ac, is_refunded, created_at`

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b             model.Bid
		amount, amtAC int64
		cur           string
	)
	if err := row.Scan(&b.ID, &b.CampaignID, &b.BidderID, &amount, &cur, &amtAC, &b.IsRefunded, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	b.Amount = currency.FromCents(amount)
	b.AmountAC = currency.FromCents(amtAC)
	b.Currency = model.Currency(cur)
	return b, nil
}

func (r *PostgresRepository) queryBids(ctx context.Context, query string, args ...any) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var res []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListBids возвращает историю ставок кампании, новые первыми.
func (r *PostgresRepository) ListBids(ctx context.Context, campaignID uuid.UUID) ([]model.Bid, error) {
	return r.queryBids(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE campaign_id = $1 ORDER BY created_at DESC`,
		campaignID,
	)
}

// ListRefundableBids возвращает невозвращённые ставки кампании, кроме выигравшей.
func (r *PostgresRepository) ListRefundableBids(ctx context.Context, campaignID uuid.UUID, winningBidID *uuid.UUID, limit int) ([]model.Bid, error) {
	return r.queryBids(ctx,
		`SELECT `+bidColumns+`
		 FROM bids
		 WHERE campaign_id = $1 AND NOT is_refunded AND ($2::uuid IS NULL OR id <> $2::uuid)
		 ORDER BY created_at
		 LIMIT $3`,
		campaignID, winningBidID, limit,
	)
}

// RefundBid возвращает ставку участнику. Отметка и зачисление выполняются в одной
// транзакции; если ставка уже возвращена, возвращает false без зачисления.
func (r *PostgresRepository) RefundBid(ctx context.Context, bidID uuid.UUID) (bool, error) {
	refunded := false

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var (
			bidderID uuid.UUID
			amtAC    int64
		)
		err := tx.QueryRow(ctx,
			`UPDATE bids SET is_refunded = TRUE
			 WHERE id = $1 AND NOT is_refunded
			 RETURNING bidder_id, amount_ac`,
			bidID,
		).Scan(&bidderID, &amtAC)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("mark bid refunded: %w", err)
		}

		if err := restore(ctx, tx, bidderID, model.CurrencyAC, currency.FromCents(amtAC)); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return refunded, nil
}

// ListCampaignsPendingRefunds возвращает закрытые аукционы, у которых остались
// невозвращённые проигравшие ставки.
func (r *PostgresRepository) ListCampaignsPendingRefunds(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id
		 FROM campaigns c
		 WHERE c.campaign_type = 'auction_donation'
		   AND c.status = 'closed'
		   AND EXISTS (
		       SELECT 1 FROM bids b
		       WHERE b.campaign_id = c.id AND NOT b.is_refunded
		         AND (c.winning_bid_id IS NULL OR b.id <> c.winning_bid_id))
		 ORDER BY c.updated_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select campaigns pending refunds: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
