package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/currency"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

const maxDescriptionLen = 2000

// DescriptionInput содержит сведения о кампании для генерации описания.
type DescriptionInput struct {
	Title              string
	Type               model.CampaignType
	GoalAmount         *decimal.Decimal
	BaseAmount         *decimal.Decimal
	AcceptedCurrencies []model.Currency
}

// GenerateDescription возвращает описание кампании от генератора текста, а при
// его недоступности описание по шаблону.
func (s *Service) GenerateDescription(ctx context.Context, in DescriptionInput) string {
	if s.textgen != nil {
		text, err := s.textgen.Generate(ctx, descriptionPrompt(in))
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return truncateRunes(text, maxDescriptionLen)
		}
		s.logger.Warn("text generation failed, using template", zap.Error(err))
	}
	return templateDescription(in)
}

// truncateRunes обрезает строку до limit символов, не разрезая многобайтовые руны.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

func descriptionPrompt(in DescriptionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short, friendly description for a campaign titled %q. ", in.Title)
	switch in.Type {
	case model.CampaignTypeAuction:
		b.WriteString("It is an auction: supporters place bids and the highest bid wins. ")
		if in.BaseAmount != nil {
			fmt.Fprintf(&b, "Bidding starts at %s AC. ", in.BaseAmount.StringFixed(currency.Precision))
		}
	default:
		b.WriteString("It collects donations from supporters. ")
		if in.GoalAmount != nil {
			fmt.Fprintf(&b, "The goal is %s AC. ", in.GoalAmount.StringFixed(currency.Precision))
		}
	}
	fmt.Fprintf(&b, "Accepted currencies: %s. Answer with plain text, at most three sentences.", joinCurrencies(in.AcceptedCurrencies))
	return b.String()
}

func templateDescription(in DescriptionInput) string {
	if in.Type == model.CampaignTypeAuction {
		s := fmt.Sprintf("%s is an auction campaign. Place a bid in %s and the highest bid wins when the auction closes.",
			in.Title, joinCurrencies(in.AcceptedCurrencies))
		if in.BaseAmount != nil {
			s += fmt.Sprintf(" Bids start at %s AC.", in.BaseAmount.StringFixed(currency.Precision))
		}
		return s
	}

	s := fmt.Sprintf("%s is collecting donations in %s.", in.Title, joinCurrencies(in.AcceptedCurrencies))
	if in.GoalAmount != nil {
		s += fmt.Sprintf(" Help reach the goal of %s AC.", in.GoalAmount.StringFixed(currency.Precision))
	} else {
		s += " Every contribution counts."
	}
	return s
}

func joinCurrencies(list []model.Currency) string {
	parts := make([]string, 0, len(list))
	for _, c := range list {
		parts = append(parts, string(c))
	}
	if len(parts) == 0 {
		return "AC"
	}
	return strings.Join(parts, " or ")
}
