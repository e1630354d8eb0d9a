package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	"github.com/smallbiznis/soarecon/internal/clock"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

// Fixture bundles a seeded database with a fixed clock and id node.
type Fixture struct {
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
}

func NewFixture(t testing.TB) *Fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return &Fixture{
		DB:    OpenDB(t),
		Node:  node,
		Clock: clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
}

func (f *Fixture) Case(t testing.TB, vendorID snowflake.ID) *casedomain.Case {
	t.Helper()

	now := f.Clock.Now()
	c := &casedomain.Case{
		ID:        f.Node.Generate(),
		VendorID:  vendorID,
		Reference: "SOA-" + now.Format("20060102"),
		Status:    casedomain.CaseStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.DB.Create(c).Error; err != nil {
		t.Fatalf("seed case: %v", err)
	}
	return c
}

type LineSpec struct {
	InvoiceNumber string
	Amount        string
	Currency      string
	Date          string
}

func (f *Fixture) Line(t testing.TB, c *casedomain.Case, spec LineSpec) *statementdomain.Line {
	t.Helper()

	now := f.Clock.Now()
	line := &statementdomain.Line{
		ID:            f.Node.Generate(),
		CaseID:        c.ID,
		VendorID:      c.VendorID,
		InvoiceNumber: optional(spec.InvoiceNumber),
		Amount:        decimal.RequireFromString(spec.Amount),
		Currency:      currencyOrUSD(spec.Currency),
		InvoiceDate:   Date(spec.Date),
		Status:        statementdomain.LineStatusExtracted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.DB.Create(line).Error; err != nil {
		t.Fatalf("seed line: %v", err)
	}
	return line
}

type LedgerSpec struct {
	InvoiceNumber string
	TotalAmount   string
	Currency      string
	Date          string
}

func (f *Fixture) Ledger(t testing.TB, vendorID snowflake.ID, spec LedgerSpec) *statementdomain.LedgerRecord {
	t.Helper()

	total := decimal.RequireFromString(spec.TotalAmount)
	record := &statementdomain.LedgerRecord{
		ID:            f.Node.Generate(),
		VendorID:      vendorID,
		InvoiceNumber: optional(spec.InvoiceNumber),
		Amount:        total,
		TotalAmount:   total,
		Currency:      currencyOrUSD(spec.Currency),
		InvoiceDate:   Date(spec.Date),
		CreatedAt:     f.Clock.Now(),
	}
	if err := f.DB.Create(record).Error; err != nil {
		t.Fatalf("seed ledger record: %v", err)
	}
	return record
}

// Date parses a YYYY-MM-DD day in UTC. Empty input yields nil.
func Date(value string) *time.Time {
	if value == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &d
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func currencyOrUSD(value string) string {
	if value == "" {
		return "USD"
	}
	return value
}
