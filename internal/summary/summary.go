// Package summary projects case totals from lines, matches and discrepancies.
// Nothing here touches storage.
package summary

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

// CaseSummary is derived on every read. Matched figures count confirmed
// matches only; pending ones are reported separately and stay unmatched.
type CaseSummary struct {
	TotalLines        int             `json:"total_lines"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	MatchedLines      int             `json:"matched_lines"`
	MatchedAmount     decimal.Decimal `json:"matched_amount"`
	UnmatchedLines    int             `json:"unmatched_lines"`
	UnmatchedAmount   decimal.Decimal `json:"unmatched_amount"`
	PendingLines      int             `json:"pending_lines"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	DiscrepancyLines  int             `json:"discrepancy_lines"`
	DiscrepancyAmount decimal.Decimal `json:"discrepancy_amount"`
	OpenDiscrepancies int             `json:"open_discrepancies"`
	NetVariance       decimal.Decimal `json:"net_variance"`
}

func Summarize(lines []*statementdomain.Line, matches []*matchingdomain.Match) CaseSummary {
	active := make(map[snowflake.ID]matchingdomain.MatchStatus, len(matches))
	for _, m := range matches {
		if m == nil || !m.Status.IsActive() {
			continue
		}
		if m.Status == matchingdomain.MatchStatusConfirmed || active[m.SOAItemID] == "" {
			active[m.SOAItemID] = m.Status
		}
	}

	sorted := make([]*statementdomain.Line, 0, len(lines))
	for _, l := range lines {
		if l != nil {
			sorted = append(sorted, l)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	s := CaseSummary{
		TotalAmount:       decimal.Zero,
		MatchedAmount:     decimal.Zero,
		UnmatchedAmount:   decimal.Zero,
		PendingAmount:     decimal.Zero,
		DiscrepancyAmount: decimal.Zero,
	}
	for _, l := range sorted {
		s.TotalLines++
		s.TotalAmount = s.TotalAmount.Add(l.Amount)

		switch active[l.ID] {
		case matchingdomain.MatchStatusConfirmed:
			s.MatchedLines++
			s.MatchedAmount = s.MatchedAmount.Add(l.Amount)
		case matchingdomain.MatchStatusPending:
			s.PendingLines++
			s.PendingAmount = s.PendingAmount.Add(l.Amount)
			fallthrough
		default:
			s.UnmatchedLines++
			s.UnmatchedAmount = s.UnmatchedAmount.Add(l.Amount)
		}
	}
	s.NetVariance = s.TotalAmount.Sub(s.MatchedAmount)
	return s
}

// WithDiscrepancies folds open discrepancies into the summary. Each distinct
// line counts once; a discrepancy with no line counts as one on its own.
func (s CaseSummary) WithDiscrepancies(items []*discrepancydomain.Discrepancy) CaseSummary {
	seen := map[snowflake.ID]struct{}{}
	lines := 0
	open := 0
	amount := decimal.Zero
	for _, d := range items {
		if d == nil || d.Status != discrepancydomain.StatusOpen {
			continue
		}
		open++
		amount = amount.Add(d.AmountDelta.Abs())

		ids := d.LineIDs()
		if len(ids) == 0 {
			lines++
			continue
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			lines++
		}
	}
	s.DiscrepancyLines = lines
	s.DiscrepancyAmount = amount
	s.OpenDiscrepancies = open
	return s
}

// Complete reports whether every line is confirmed and nothing is open.
func (s CaseSummary) Complete() bool {
	return s.UnmatchedLines == 0 && s.PendingLines == 0 && s.OpenDiscrepancies == 0
}
