package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/quantity"
	"github.com/roach88/cyclecount/internal/remote"
	"github.com/roach88/cyclecount/internal/session"
)

// Status is a product's reconciliation state within a session.
type Status int

const (
	Uncounted Status = iota
	CountedMatch
	CountedMismatch
)

func (s Status) String() string {
	switch s {
	case CountedMatch:
		return "match"
	case CountedMismatch:
		return "mismatch"
	default:
		return "uncounted"
	}
}

// StatusOf compares the session's count for p with its expected quantity.
// Both sides are normalized to step before the comparison; a record with
// Counted unset is uncounted.
func StatusOf(p catalog.Product, s *session.Session, step decimal.Decimal) Status {
	rec, ok := s.Record(p.Title)
	if !ok || !rec.Counted {
		return Uncounted
	}
	counted := quantity.Normalize(rec.CountedQty, step)
	expected := quantity.Normalize(p.ExpectedQty, step)
	if counted.Equal(expected) {
		return CountedMatch
	}
	return CountedMismatch
}

// Progress is the share of catalog products counted in a session.
type Progress struct {
	Counted int `json:"counted"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// ProgressOf counts catalog titles with a counted record. Session titles
// missing from the catalog are ignored.
func ProgressOf(cat *catalog.Catalog, s *session.Session) Progress {
	p := Progress{Total: cat.Len()}
	for _, prod := range cat.Products() {
		if rec, ok := s.Record(prod.Title); ok && rec.Counted {
			p.Counted++
		}
	}
	if p.Total > 0 {
		// round half up
		p.Percent = (p.Counted*200 + p.Total) / (2 * p.Total)
	}
	return p
}

// Filter selects rows by status.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterUncounted Filter = "uncounted"
	FilterCounted   Filter = "counted"
	FilterMismatch  Filter = "mismatch"
)

// ParseFilter validates a filter name. Empty means all.
func ParseFilter(name string) (Filter, error) {
	switch f := Filter(name); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUncounted, FilterCounted, FilterMismatch:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, uncounted, counted or mismatch)", name)
	}
}

// Match reports whether a row with status st passes the filter.
func (f Filter) Match(st Status) bool {
	switch f {
	case FilterUncounted:
		return st == Uncounted
	case FilterCounted:
		return st != Uncounted
	case FilterMismatch:
		return st == CountedMismatch
	default:
		return true
	}
}

// Row is one product as shown to the user.
type Row struct {
	Product    catalog.Product
	Status     Status
	CountedQty decimal.Decimal // zero when uncounted
}

// BuildView returns the catalog rows matching filter and the title search
// query, in catalog order.
func BuildView(cat *catalog.Catalog, s *session.Session, step decimal.Decimal, filter Filter, query string) []Row {
	products := catalog.Search(cat.Products(), query)
	rows := make([]Row, 0, len(products))
	for _, p := range products {
		st := StatusOf(p, s, step)
		if !filter.Match(st) {
			continue
		}
		row := Row{Product: p, Status: st}
		if st != Uncounted {
			rec, _ := s.Record(p.Title)
			row.CountedQty = quantity.Normalize(rec.CountedQty, step)
		}
		rows = append(rows, row)
	}
	return rows
}

// Payload builds the batch items for every counted title, sorted by title,
// with integer cases. Counted titles missing from the catalog are returned
// as stale and left out.
func Payload(cat *catalog.Catalog, s *session.Session) (items []remote.BatchItem, stale []string) {
	items = []remote.BatchItem{}
	for _, title := range s.Counted() {
		if !cat.Has(title) {
			stale = append(stale, title)
			continue
		}
		rec, _ := s.Record(title)
		items = append(items, remote.BatchItem{
			ProductTitle: title,
			CasesQty:     quantity.Cases(rec.CountedQty),
		})
	}
	return items, stale
}
