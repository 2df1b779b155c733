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

// HasDonated сообщает, делал ли пользователь пожертвование в кампанию.
func (r *PostgresRepository) HasDonated(ctx context.Context, campaignID, donorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM donations WHERE campaign_id = $1 AND donor_id = $2)`,
		campaignID, donorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check donation: %w", err)
	}
	return exists, nil
}

// RecordDonation сохраняет пожертвование и увеличивает суммы кампании. Повторное
// пожертвование отсекается уникальным ограничением (campaign_id, donor_id).
func (r *PostgresRepository) RecordDonation(ctx context.Context, d *model.Donation) (*model.Campaign, error) {
	var updated *model.Campaign

	var addAC, addAB int64
	switch d.Currency {
	case model.CurrencyAC:
		addAC = currency.ToCents(d.Amount)
	case model.CurrencyAB:
		addAB = currency.ToCents(d.Amount)
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO donations (id, campaign_id, donor_id, amount, currency, amount_ac, anonymously_donated)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING created_at`,
			d.ID, d.CampaignID, d.DonorID, currency.ToCents(d.Amount), string(d.Currency),
			currency.ToCents(d.AmountAC), d.AnonymouslyDonated,
		).Scan(&d.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyDonated
			}
			return fmt.Errorf("insert donation: %w", err)
		}

		c, err := scanCampaign(tx.QueryRow(ctx,
			`UPDATE campaigns
			 SET total_donations = total_donations + $2,
			     total_donations_ac = total_donations_ac + $3,
			     total_donations_ab = total_donations_ab + $4,
			     updated_at = now()
			 WHERE id = $1 AND campaign_type = 'simple_donation' AND status = 'active'
			   AND (deadline IS NULL OR deadline > now())
			 RETURNING `+campaignColumns,
			d.CampaignID, currency.ToCents(d.AmountAC), addAC, addAB,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStatusConflict
			}
			return fmt.Errorf("update campaign totals: %w", err)
		}

		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListDonations возвращает пожертвования кампании, новые первыми.
func (r *PostgresRepository) ListDonations(ctx context.Context, campaignID uuid.UUID) ([]model.Donation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, donor_id, amount, currency, amount_ac, anonymously_donated, created_at
		 FROM donations
		 WHERE campaign_id = $1
		 ORDER BY created_at DESC`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("select donations: %w", err)
	}
	defer rows.Close()

	var res []model.Donation
	for rows.Next() {
		var (
			d             model.Donation
			amount, amtAC int64
			cur           string
		)
		if err := rows.Scan(&d.ID, &d.DonorID, &amount, &cur, &amtAC, &d.AnonymouslyDonated, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		d.CampaignID = campaignID
		d.Amount = currency.FromCents(amount)
		d.AmountAC = currency.FromCents(amtAC)
		d.Currency = model.Currency(cur)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
