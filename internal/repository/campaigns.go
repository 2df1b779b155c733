package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

const campaignColumns = `id, owner_id, title, description, campaign_type, goal_type, goal_amount, base_amount,
	accepted_currencies, deadline, status, is_approved, closed_reason,
	total_donations, total_donations_ac, total_donations_ab,
	highest_bid, current_winner_id, winning_bid_id, is_claimed, claimed_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var (
		c            model.Campaign
		goalType     *string
		goalAmount   *int64
		baseAmount   *int64
		currencies   []string
		closedReason *string
		total        int64
		totalAC      int64
		totalAB      int64
		highestBid   *int64
	)

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Description, &c.Type, &goalType, &goalAmount, &baseAmount,
		&currencies, &c.Deadline, &c.Status, &c.IsApproved, &closedReason,
		&total, &totalAC, &totalAB,
		&highestBid, &c.CurrentWinnerID, &c.WinningBidID, &c.IsClaimed, &c.ClaimedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if goalType != nil {
		c.GoalType = model.GoalType(*goalType)
	}
	if closedReason != nil {
		c.ClosedReason = model.CloseReason(*closedReason)
	}
	c.GoalAmount = centsPtr(goalAmount)
	c.BaseAmount = centsPtr(baseAmount)
	c.HighestBid = centsPtr(highestBid)
	c.TotalDonations = currency.FromCents(total)
	c.TotalDonationsAC = currency.FromCents(totalAC)
	c.TotalDonationsAB = currency.FromCents(totalAB)

	c.AcceptedCurrencies = make([]model.Currency, 0, len(currencies))
	for _, s := range currencies {
		c.AcceptedCurrencies = append(c.AcceptedCurrencies, model.Currency(s))
	}

	return &c, nil
}

// CreateCampaign сохраняет новую кампанию.
func (r *PostgresRepository) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	currencies := make([]string, 0, len(c.AcceptedCurrencies))
	for _, cur := range c.AcceptedCurrencies {
		currencies = append(currencies, string(cur))
	}

	var goalType *string
	if c.GoalType != "" {
		s := string(c.GoalType)
		goalType = &s
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO campaigns (id, owner_id, title, description, campaign_type, goal_type, goal_amount,
			base_amount, accepted_currencies, deadline, status, is_approved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		c.ID, c.OwnerID, c.Title, c.Description, string(c.Type), goalType, toCentsPtr(c.GoalAmount),
		toCentsPtr(c.BaseAmount), currencies, c.Deadline, string(c.Status), c.IsApproved,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetCampaign возвращает кампанию по идентификатору.
func (r *PostgresRepository) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns возвращает кампании по фильтру, новые первыми.
func (r *PostgresRepository) ListCampaigns(ctx context.Context, f model.CampaignFilter) ([]model.Campaign, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("campaign_type = $%d", len(args)))
	}
	if f.OwnerID != nil {
		args = append(args, *f.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select campaigns: %w", err)
	}
	defer rows.Close()

	var res []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TransitionCampaign переводит кампанию в состояние to, если текущее состояние входит в from.
func (r *PostgresRepository) TransitionCampaign(ctx context.Context, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus, reason model.CloseReason) (*model.Campaign, error) {
	fromStr := make([]string, 0, len(from))
	for _, s := range from {
		fromStr = append(fromStr, string(s))
	}

	var reasonArg *string
	if to == model.CampaignStatusClosed && reason != "" {
		s := string(reason)
		reasonArg = &s
	}

	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`UPDATE campaigns
		 SET status = $3,
		     is_approved = is_approved OR $3 = 'active',
		     closed_reason = COALESCE($4, closed_reason),
		     updated_at = now()
		 WHERE id = $1 AND status = ANY($2)
		 RETURNING `+campaignColumns,
		id, fromStr, string(to), reasonArg,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("transition campaign: %w", err)
	}
	return c, nil
}

// CloseExpired закрывает кампанию с наступившим дедлайном. Возвращает false,
// если кампания уже закрыта или дедлайн не наступил.
func (r *PostgresRepository) CloseExpired(ctx context.Context, id uuid.UUID, now time.Time) (*model.Campaign, bool, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`UPDATE campaigns
		 SET status = 'closed', closed_reason = 'deadline', updated_at = now()
		 WHERE id = $1 AND status <> 'closed' AND deadline IS NOT NULL AND deadline <= $2
		 RETURNING `+campaignColumns,
		id, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("close expired campaign: %w", err)
	}
	return c, true, nil
}

// ClaimPayout атомарно отмечает кампанию выплаченной и зачисляет payout владельцу.
// Повторный вызов возвращает ErrAlreadyClaimed без зачисления.
func (r *PostgresRepository) ClaimPayout(ctx context.Context, campaignID, ownerID uuid.UUID, cur model.Currency, payout decimal.Decimal) (time.Time, error) {
	var claimedAt time.Time

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE campaigns
			 SET is_claimed = TRUE, claimed_at = now(), updated_at = now()
			 WHERE id = $1 AND owner_id = $2 AND status = 'closed' AND NOT is_claimed
			 RETURNING claimed_at`,
			campaignID, ownerID,
		).Scan(&claimedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAlreadyClaimed
			}
			return fmt.Errorf("mark claimed: %w", err)
		}

		return credit(ctx, tx, ownerID, cur, payout)
	})
	if err != nil {
		return time.Time{}, err
	}
	return claimedAt, nil
}

func centsPtr(v *int64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := currency.FromCents(*v)
	return &d
}

func toCentsPtr(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	v := currency.ToCents(*d)
	return &v
}
