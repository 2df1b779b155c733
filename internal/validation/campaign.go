// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
)

// Amount проверяет, что сумма положительна и содержит не больше двух знаков после запятой.
func Amount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return errors.New("amount must be positive")
	}
	if !d.Equal(d.Round(currency.Precision)) {
		return fmt.Errorf("amount must have at most %d decimal places", currency.Precision)
	}
	return nil
}

// Campaign проверяет поля новой кампании с учётом её типа.
func Campaign(c *model.Campaign, now time.Time) error {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return fmt.Errorf("title must be at most %d characters", maxTitleLen)
	}
	if utf8.RuneCountInString(c.Description) > maxDescriptionLen {
		return fmt.Errorf("description must be at most %d characters", maxDescriptionLen)
	}

	if len(c.AcceptedCurrencies) == 0 {
		return errors.New("at least one accepted currency is required")
	}
	seen := make(map[model.Currency]bool, len(c.AcceptedCurrencies))
	for _, cur := range c.AcceptedCurrencies {
		if !currency.Convertible(cur) {
			return fmt.Errorf("currency %q cannot be accepted by a campaign", cur)
		}
		if seen[cur] {
			return fmt.Errorf("currency %s is listed twice", cur)
		}
		seen[cur] = true
	}

	if c.Deadline != nil && !c.Deadline.After(now) {
		return errors.New("deadline must be in the future")
	}

	switch c.Type {
	case model.CampaignTypeAuction:
		return auction(c)
	case model.CampaignTypeSimple:
		return simple(c)
	default:
		return fmt.Errorf("unknown campaign type %q", c.Type)
	}
}

func auction(c *model.Campaign) error {
	if c.BaseAmount == nil {
		return errors.New("auction requires base_amount")
	}
	if err := Amount(*c.BaseAmount); err != nil {
		return fmt.Errorf("base_amount: %w", err)
	}
	if c.GoalType != "" || c.GoalAmount != nil {
		return errors.New("auction cannot have a goal")
	}
	return nil
}

func simple(c *model.Campaign) error {
	if c.BaseAmount != nil {
		return errors.New("base_amount is only allowed for auctions")
	}

	switch c.GoalType {
	case model.GoalTypeFixed:
		if c.GoalAmount == nil {
			return errors.New("fixed goal requires goal_amount")
		}
		if err := Amount(*c.GoalAmount); err != nil {
			return fmt.Errorf("goal_amount: %w", err)
		}
	case model.GoalTypeOpenEnded:
		if c.GoalAmount != nil {
			return errors.New("open-ended campaign cannot have goal_amount")
		}
	default:
		return fmt.Errorf("unknown goal type %q", c.GoalType)
	}
	return nil
}
