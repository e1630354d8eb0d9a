package detector

import (
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

// LineState is everything the detector needs to know about one line.
type LineState struct {
	Line *statementdomain.Line
	// ActiveMatch is the pending or confirmed match occupying the line.
	ActiveMatch *matchingdomain.Match
	// Invoice is the record the line resolves to: the active match's invoice,
	// or the best fuzzy candidate when the line is unmatched.
	Invoice *statementdomain.LedgerRecord
	// CandidateCount is the number of vendor records inside the date window.
	CandidateCount int
}

type Input struct {
	CaseID snowflake.ID
	Lines  []LineState
	Open   []*domain.Discrepancy
	// Resolved settles findings: one that repeats a resolved discrepancy with
	// the same invoice and delta is not raised again.
	Resolved []*domain.Discrepancy
}

// Result separates new findings from open discrepancies whose details moved.
type Result struct {
	Create []*domain.Discrepancy
	Update []*domain.Discrepancy
}

func (r Result) Empty() bool { return len(r.Create) == 0 && len(r.Update) == 0 }

type Detector struct {
	cfg config.MatchingConfigSource
}

func New(cfg config.MatchingConfigSource) *Detector {
	return &Detector{cfg: cfg}
}

// Detect is pure. Running it again over the state it produced yields an
// empty result.
func (d *Detector) Detect(in Input) Result {
	cfg := d.cfg.Get()
	tolerance := decimal.NewFromFloat(cfg.DiscrepancyTolerance)
	highRatio := decimal.NewFromFloat(cfg.HighSeverityRatio)

	lines := make([]LineState, 0, len(in.Lines))
	for _, state := range in.Lines {
		if state.Line != nil {
			lines = append(lines, state)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line.ID < lines[j].Line.ID })

	var findings []*domain.Discrepancy
	for _, state := range lines {
		if f := amountMismatch(in.CaseID, state, tolerance, highRatio); f != nil {
			findings = append(findings, f)
		}
		if f := missingInvoice(in.CaseID, state); f != nil {
			findings = append(findings, f)
		}
	}
	findings = append(findings, duplicateClaims(in.CaseID, lines)...)

	open := make(map[domain.Key]*domain.Discrepancy, len(in.Open))
	manual := map[domain.Key]bool{}
	for _, existing := range in.Open {
		if existing == nil || existing.Status != domain.StatusOpen {
			continue
		}
		if existing.Origin == domain.OriginManual {
			manual[existing.Key()] = true
			continue
		}
		if existing.SOAItemID == nil {
			continue
		}
		open[existing.Key()] = existing
	}

	settled := make(map[domain.Key][]*domain.Discrepancy, len(in.Resolved))
	for _, r := range in.Resolved {
		if r == nil || r.Status != domain.StatusResolved {
			continue
		}
		settled[r.Key()] = append(settled[r.Key()], r)
	}

	var result Result
	for _, f := range findings {
		existing, ok := open[f.Key()]
		if !ok {
			if manual[f.Key()] || isSettled(settled[f.Key()], f) {
				continue
			}
			result.Create = append(result.Create, f)
			continue
		}
		if sameDetails(existing, f) {
			continue
		}
		updated := *existing
		updated.SOAItemID = f.SOAItemID
		updated.Severity = f.Severity
		updated.Description = f.Description
		updated.AmountDelta = f.AmountDelta
		updated.InvoiceID = f.InvoiceID
		updated.RelatedItemIDs = f.RelatedItemIDs
		result.Update = append(result.Update, &updated)
	}
	return result
}

func amountMismatch(caseID snowflake.ID, state LineState, tolerance, highRatio decimal.Decimal) *domain.Discrepancy {
	match := state.ActiveMatch
	if match == nil || match.Status != matchingdomain.MatchStatusConfirmed || state.Invoice == nil {
		return nil
	}
	delta := state.Line.Amount.Sub(state.Invoice.TotalAmount)
	if delta.Abs().LessThanOrEqual(tolerance) {
		return nil
	}

	severity := domain.SeverityMedium
	if delta.Abs().GreaterThan(state.Line.Amount.Abs().Mul(highRatio)) {
		severity = domain.SeverityHigh
	}

	return &domain.Discrepancy{
		CaseID:      caseID,
		SOAItemID:   idPtr(state.Line.ID),
		InvoiceID:   idPtr(state.Invoice.ID),
		Type:        domain.TypeAmountMismatch,
		Severity:    severity,
		Description: fmt.Sprintf("statement claims %s %s, ledger record %s totals %s", state.Line.Amount.StringFixed(2), state.Line.Currency, state.Invoice.ID, state.Invoice.TotalAmount.StringFixed(2)),
		AmountDelta: delta,
		Status:      domain.StatusOpen,
		Origin:      domain.OriginDetector,
	}
}

func missingInvoice(caseID snowflake.ID, state LineState) *domain.Discrepancy {
	if state.Line.Status != statementdomain.LineStatusExtracted || state.ActiveMatch != nil || state.CandidateCount > 0 {
		return nil
	}
	return &domain.Discrepancy{
		CaseID:      caseID,
		SOAItemID:   idPtr(state.Line.ID),
		Type:        domain.TypeMissingInvoice,
		Severity:    domain.SeverityHigh,
		Description: fmt.Sprintf("no ledger record for vendor %s within the date window of this line", state.Line.VendorID),
		AmountDelta: state.Line.Amount,
		Status:      domain.StatusOpen,
		Origin:      domain.OriginDetector,
	}
}

// duplicateClaims groups lines by the record they resolve to. Each group of
// two or more lines yields one finding anchored on its lowest line id; the
// finding is keyed by the record, so a new lowest line moves the anchor.
func duplicateClaims(caseID snowflake.ID, lines []LineState) []*domain.Discrepancy {
	groups := map[snowflake.ID][]LineState{}
	var order []snowflake.ID
	for _, state := range lines {
		if state.Invoice == nil {
			continue
		}
		if state.ActiveMatch == nil && state.Line.Status != statementdomain.LineStatusExtracted {
			continue
		}
		id := state.Invoice.ID
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], state)
	}

	var out []*domain.Discrepancy
	for _, invoiceID := range order {
		group := groups[invoiceID]
		if len(group) < 2 {
			continue
		}
		anchor := group[0]
		claimed := decimal.Zero
		related := make([]snowflake.ID, 0, len(group)-1)
		for i, state := range group {
			claimed = claimed.Add(state.Line.Amount)
			if i > 0 {
				related = append(related, state.Line.ID)
			}
		}
		invoice := anchor.Invoice
		out = append(out, &domain.Discrepancy{
			CaseID:         caseID,
			SOAItemID:      idPtr(anchor.Line.ID),
			InvoiceID:      idPtr(invoice.ID),
			RelatedItemIDs: related,
			Type:           domain.TypeDuplicateClaim,
			Severity:       domain.SeverityMedium,
			Description:    fmt.Sprintf("%d statement lines resolve to ledger record %s", len(group), invoice.ID),
			AmountDelta:    claimed.Sub(invoice.TotalAmount),
			Status:         domain.StatusOpen,
			Origin:         domain.OriginDetector,
		})
	}
	return out
}

func sameDetails(existing, finding *domain.Discrepancy) bool {
	if existing.Severity != finding.Severity || !existing.AmountDelta.Equal(finding.AmountDelta) {
		return false
	}
	if !sameIDPtr(existing.SOAItemID, finding.SOAItemID) || !sameIDPtr(existing.InvoiceID, finding.InvoiceID) {
		return false
	}
	if len(existing.RelatedItemIDs) != len(finding.RelatedItemIDs) {
		return false
	}
	for i := range existing.RelatedItemIDs {
		if existing.RelatedItemIDs[i] != finding.RelatedItemIDs[i] {
			return false
		}
	}
	return true
}

func isSettled(resolved []*domain.Discrepancy, finding *domain.Discrepancy) bool {
	for _, r := range resolved {
		if sameIDPtr(r.InvoiceID, finding.InvoiceID) && r.AmountDelta.Equal(finding.AmountDelta) {
			return true
		}
	}
	return false
}

func sameIDPtr(a, b *snowflake.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idPtr(id snowflake.ID) *snowflake.ID {
	return &id
}
