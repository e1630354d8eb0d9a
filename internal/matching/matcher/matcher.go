// Package matcher proposes at most one ledger record for a statement line.
//
// A deterministic pass runs first: invoice number (trimmed, case-folded),
// currency and amount must all agree. Exactly one such candidate yields an
// exact match. Several are ambiguous; they are set aside and never picked.
// Everything else goes through weighted fuzzy scoring.
package matcher

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/matching/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

type Outcome string

const (
	OutcomeDeterministic  Outcome = "deterministic"
	OutcomeFuzzy          Outcome = "fuzzy"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeNoEligible     Outcome = "no_eligible_candidate"
)

// Scored is one fuzzy-scored candidate.
type Scored struct {
	Record     *statementdomain.LedgerRecord
	Score      float64
	MatchScore int
	Criteria   domain.MatchCriteria
	dateDist   time.Duration
	hasDate    bool
}

// Evaluation is the full outcome of one Propose call.
type Evaluation struct {
	Match      *domain.Match
	Outcome    Outcome
	Ambiguous  bool
	Considered int
	// Best is the top fuzzy candidate even when it fell below the threshold.
	Best *Scored
}

type Matcher struct {
	cfg config.MatchingConfigSource
	log *zap.Logger
}

func New(cfg config.MatchingConfigSource, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{cfg: cfg, log: log.Named("matching.matcher")}
}

// Propose returns the proposed match for line, or nil when nothing qualifies.
// It has no side effects.
func (m *Matcher) Propose(ctx context.Context, line *statementdomain.Line, candidates []*statementdomain.LedgerRecord) (*domain.Match, error) {
	ev, err := m.Evaluate(ctx, line, candidates)
	if err != nil {
		return nil, err
	}
	return ev.Match, nil
}

func (m *Matcher) Evaluate(ctx context.Context, line *statementdomain.Line, candidates []*statementdomain.LedgerRecord) (*Evaluation, error) {
	if line == nil || line.ID == 0 {
		return nil, domain.ErrInvalidLine
	}
	if line.Status != statementdomain.LineStatusExtracted {
		return nil, domain.ErrLineNotExtracted
	}

	pool := sameVendor(line.VendorID, candidates)
	if len(pool) == 0 {
		return nil, domain.ErrEmptyCandidateSet
	}

	cfg := m.cfg.Get()
	epsilon := decimal.NewFromFloat(cfg.AmountEpsilon)
	ev := &Evaluation{Considered: len(pool)}

	exact := deterministicQualifiers(line, pool, epsilon)
	switch {
	case len(exact) == 1:
		ev.Match = deterministicMatch(line, exact[0], cfg)
		ev.Outcome = OutcomeDeterministic
		return ev, nil
	case len(exact) > 1:
		ev.Ambiguous = true
		m.log.Debug("deterministic pass ambiguous",
			zap.String("soa_item_id", line.ID.String()),
			zap.Int("qualifiers", len(exact)),
		)
		pool = without(pool, exact)
	}

	fuzzyPool := sameCurrency(line.Currency, pool)
	fuzzyPool = capByAmountDistance(line.Amount, fuzzyPool, cfg.MaxCandidates)

	var best *Scored
	for _, record := range fuzzyPool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scored := score(line, record, cfg)
		if best == nil || better(scored, best) {
			best = scored
		}
	}
	ev.Best = best

	if best == nil {
		ev.Outcome = OutcomeNoEligible
		m.log.Debug("no eligible fuzzy candidate",
			zap.String("soa_item_id", line.ID.String()),
			zap.Int("candidates", len(pool)),
		)
		return ev, nil
	}

	confidence := float64(best.MatchScore) / 100
	if confidence < cfg.MinConfidence {
		ev.Outcome = OutcomeBelowThreshold
		m.log.Debug("best fuzzy candidate below threshold",
			zap.String("soa_item_id", line.ID.String()),
			zap.String("invoice_id", best.Record.ID.String()),
			zap.Int("match_score", best.MatchScore),
		)
		return ev, nil
	}

	ev.Outcome = OutcomeFuzzy
	ev.Match = fuzzyMatch(line, best)
	return ev, nil
}

// Pair scores line against one record chosen by the caller. The confidence
// threshold does not apply; the result is what a reviewer asked for.
func (m *Matcher) Pair(line *statementdomain.Line, record *statementdomain.LedgerRecord) *domain.Match {
	cfg := m.cfg.Get()
	epsilon := decimal.NewFromFloat(cfg.AmountEpsilon)
	pool := []*statementdomain.LedgerRecord{record}
	if len(deterministicQualifiers(line, pool, epsilon)) == 1 {
		return deterministicMatch(line, record, cfg)
	}

	scored := score(line, record, cfg)
	scored.Criteria.Currency = sameCurrencyCode(line.Currency, record.Currency)
	return fuzzyMatch(line, scored)
}

func fuzzyMatch(line *statementdomain.Line, scored *Scored) *domain.Match {
	return &domain.Match{
		CaseID:       line.CaseID,
		SOAItemID:    line.ID,
		InvoiceID:    scored.Record.ID,
		MatchType:    domain.MatchTypeFuzzy,
		IsExactMatch: false,
		Confidence:   float64(scored.MatchScore) / 100,
		MatchScore:   scored.MatchScore,
		Criteria:     datatypes.NewJSONType(scored.Criteria),
		Status:       domain.MatchStatusPending,
	}
}

// Window is the candidate query for line. The amount range is left open
// when a perfect date and invoice score alone can clear MinConfidence;
// otherwise it spans the widest amount difference that can still score high
// enough. Limit is MaxCandidates.
func (m *Matcher) Window(line *statementdomain.Line) statementdomain.CandidateWindow {
	cfg := m.cfg.Get()
	window := statementdomain.CandidateWindow{
		VendorID: line.VendorID,
		Currency: line.Currency,
		Amount:   line.Amount,
		Limit:    cfg.MaxCandidates,
	}

	w := cfg.Weights
	if w.Amount <= 0 || w.Total() <= 0 {
		return window
	}
	// MatchScore is rounded to whole points.
	need := cfg.MinConfidence - 0.005
	minAmountScore := (need*w.Total() - w.Date - w.InvoiceNumber) / w.Amount
	if minAmountScore <= 0 {
		return window
	}

	epsilon := decimal.NewFromFloat(cfg.AmountEpsilon)
	band := line.Amount.Abs().Mul(decimal.NewFromFloat(cfg.AmountToleranceRatio))
	if band.LessThan(epsilon) {
		band = epsilon
	}
	maxDiff := band.Mul(decimal.NewFromFloat(1 - math.Min(minAmountScore, 1)))
	if maxDiff.LessThan(epsilon) {
		maxDiff = epsilon
	}
	low := line.Amount.Sub(maxDiff)
	high := line.Amount.Add(maxDiff)
	window.AmountLow = &low
	window.AmountHigh = &high
	return window
}

// CountInWindow counts the vendor's records dated within the configured
// window of the line. An undated line counts every record of the vendor.
func (m *Matcher) CountInWindow(line *statementdomain.Line, records []*statementdomain.LedgerRecord) int {
	window := time.Duration(m.cfg.Get().DateWindowDays) * 24 * time.Hour
	count := 0
	for _, record := range records {
		if record == nil || record.VendorID != line.VendorID {
			continue
		}
		if line.InvoiceDate == nil {
			count++
			continue
		}
		if record.InvoiceDate == nil {
			continue
		}
		if absDuration(line.InvoiceDate.Sub(*record.InvoiceDate)) <= window {
			count++
		}
	}
	return count
}

func deterministicQualifiers(line *statementdomain.Line, pool []*statementdomain.LedgerRecord, epsilon decimal.Decimal) []*statementdomain.LedgerRecord {
	invoice := statementdomain.NormalizeInvoiceNumber(line.InvoiceNumber)
	if invoice == "" {
		return nil
	}

	var out []*statementdomain.LedgerRecord
	for _, record := range pool {
		if statementdomain.NormalizeInvoiceNumber(record.InvoiceNumber) != invoice {
			continue
		}
		if !sameCurrencyCode(line.Currency, record.Currency) {
			continue
		}
		if line.Amount.Sub(record.TotalAmount).Abs().GreaterThanOrEqual(epsilon) {
			continue
		}
		out = append(out, record)
	}
	return out
}

func deterministicMatch(line *statementdomain.Line, record *statementdomain.LedgerRecord, cfg config.MatchingConfig) *domain.Match {
	dateScore, _, _ := dateProximity(line.InvoiceDate, record.InvoiceDate, cfg.DateWindowDays)
	match := &domain.Match{
		CaseID:       line.CaseID,
		SOAItemID:    line.ID,
		InvoiceID:    record.ID,
		MatchType:    domain.MatchTypeDeterministic,
		IsExactMatch: true,
		Confidence:   1.0,
		MatchScore:   100,
		Criteria: datatypes.NewJSONType(domain.MatchCriteria{
			InvoiceNumber:     true,
			Amount:            true,
			Currency:          true,
			DateProximity:     dateScore > 0,
			AmountScore:       1,
			DateScore:         round4(dateScore),
			InvoiceSimilarity: 1,
		}),
		Status: domain.MatchStatusPending,
	}
	return match
}

func score(line *statementdomain.Line, record *statementdomain.LedgerRecord, cfg config.MatchingConfig) *Scored {
	epsilon := decimal.NewFromFloat(cfg.AmountEpsilon)
	diff := line.Amount.Sub(record.TotalAmount).Abs()
	amountScore := amountProximity(line.Amount, diff, epsilon, cfg.AmountToleranceRatio)
	dateScore, dist, hasDate := dateProximity(line.InvoiceDate, record.InvoiceDate, cfg.DateWindowDays)
	similarity := invoiceSimilarity(line.InvoiceNumber, record.InvoiceNumber)

	w := cfg.Weights
	combined := (w.Amount*amountScore + w.Date*dateScore + w.InvoiceNumber*similarity) / w.Total()
	combined = clamp01(combined)

	return &Scored{
		Record:     record,
		Score:      combined,
		MatchScore: int(math.Round(combined * 100)),
		Criteria: domain.MatchCriteria{
			InvoiceNumber:     similarity == 1,
			Amount:            diff.LessThan(epsilon),
			Currency:          true,
			DateProximity:     dateScore > 0,
			AmountScore:       round4(amountScore),
			DateScore:         round4(dateScore),
			InvoiceSimilarity: round4(similarity),
		},
		dateDist: dist,
		hasDate:  hasDate,
	}
}

// amountProximity is 1 within epsilon, falls linearly across the tolerance
// band and is 0 beyond it.
func amountProximity(amount, diff, epsilon decimal.Decimal, ratio float64) float64 {
	if diff.LessThanOrEqual(epsilon) {
		return 1
	}
	band := amount.Abs().Mul(decimal.NewFromFloat(ratio))
	if band.LessThan(epsilon) {
		band = epsilon
	}
	if diff.GreaterThanOrEqual(band) {
		return 0
	}
	s, _ := decimal.NewFromInt(1).Sub(diff.Div(band)).Float64()
	return clamp01(s)
}

func dateProximity(a, b *time.Time, windowDays int) (float64, time.Duration, bool) {
	if a == nil || b == nil || windowDays <= 0 {
		return 0, 0, false
	}
	dist := absDuration(a.Sub(*b))
	window := time.Duration(windowDays) * 24 * time.Hour
	if dist > window {
		return 0, dist, true
	}
	return clamp01(1 - float64(dist)/float64(window)), dist, true
}

// editOptions is plain Levenshtein distance: every edit costs one.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

func invoiceSimilarity(a, b *string) float64 {
	left := []rune(statementdomain.NormalizeInvoiceNumber(a))
	right := []rune(statementdomain.NormalizeInvoiceNumber(b))
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	longest := len(left)
	if len(right) > longest {
		longest = len(right)
	}
	distance := levenshtein.DistanceForStrings(left, right, editOptions)
	return clamp01(1 - float64(distance)/float64(longest))
}

// better orders fuzzy candidates: higher match score, then closer invoice
// date (dated beats undated), then lower record id.
func better(a, b *Scored) bool {
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	if a.hasDate != b.hasDate {
		return a.hasDate
	}
	if a.hasDate && a.dateDist != b.dateDist {
		return a.dateDist < b.dateDist
	}
	return a.Record.ID < b.Record.ID
}

func sameVendor(vendorID snowflake.ID, candidates []*statementdomain.LedgerRecord) []*statementdomain.LedgerRecord {
	out := make([]*statementdomain.LedgerRecord, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.VendorID != vendorID {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sameCurrency(currency string, pool []*statementdomain.LedgerRecord) []*statementdomain.LedgerRecord {
	out := make([]*statementdomain.LedgerRecord, 0, len(pool))
	for _, c := range pool {
		if sameCurrencyCode(currency, c.Currency) {
			out = append(out, c)
		}
	}
	return out
}

func sameCurrencyCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func without(pool, remove []*statementdomain.LedgerRecord) []*statementdomain.LedgerRecord {
	skip := make(map[*statementdomain.LedgerRecord]struct{}, len(remove))
	for _, r := range remove {
		skip[r] = struct{}{}
	}
	out := make([]*statementdomain.LedgerRecord, 0, len(pool))
	for _, c := range pool {
		if _, ok := skip[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// capByAmountDistance keeps the limit records closest by amount so scoring
// stays bounded on large ledgers.
func capByAmountDistance(amount decimal.Decimal, pool []*statementdomain.LedgerRecord, limit int) []*statementdomain.LedgerRecord {
	if limit <= 0 || len(pool) <= limit {
		return pool
	}
	sorted := make([]*statementdomain.LedgerRecord, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := amount.Sub(sorted[i].TotalAmount).Abs()
		dj := amount.Sub(sorted[j].TotalAmount).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[:limit]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
