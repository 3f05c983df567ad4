package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/remote"
)

// SaveCall records one Save request seen by FakeInventory.
type SaveCall struct {
	Title string
	Cases int64
}

// FakeInventory is an in-memory remote.Client.
//
// It behaves like the deployed store: saves and commits update the expected
// quantities it serves on the next Catalog call. Failures are programmed per
// operation and persist until cleared with a nil error.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FakeInventory struct {
	mu       sync.Mutex
	products []catalog.Product

	catalogErr error
	saveErr    error
	commitErr  error
	overrides  map[string]decimal.Decimal

	catalogCalls int
	saves        []SaveCall
	commits      []remote.Batch
}

var _ remote.Client = (*FakeInventory)(nil)

// NewFakeInventory creates a store serving products.
func NewFakeInventory(products ...catalog.Product) *FakeInventory {
	return &FakeInventory{
		products:  append([]catalog.Product(nil), products...),
		overrides: make(map[string]decimal.Decimal),
	}
}

// Product is a shorthand for building a catalog entry with whole cases.
func Product(title string, expected int64) catalog.Product {
	return catalog.Product{Title: title, ExpectedQty: decimal.NewFromInt(expected)}
}

// SetProducts replaces the products served by Catalog.
func (f *FakeInventory) SetProducts(products ...catalog.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append([]catalog.Product(nil), products...)
}

// FailCatalog makes Catalog return err.
func (f *FakeInventory) FailCatalog(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogErr = err
}

// FailSave makes Save return err.
func (f *FakeInventory) FailSave(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

// FailCommit makes Commit return err.
func (f *FakeInventory) FailCommit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitErr = err
}

// OverrideNewQty makes saves of title answer with qty as newQty, as a
// server applying its own rounding would.
func (f *FakeInventory) OverrideNewQty(title string, qty decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[title] = qty
}

// Catalog returns the current products.
func (f *FakeInventory) Catalog(_ context.Context) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogCalls++
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return append([]catalog.Product(nil), f.products...), nil
}

// Save records the call and applies the count.
func (f *FakeInventory) Save(_ context.Context, title string, cases int64) (remote.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, SaveCall{Title: title, Cases: cases})
	if f.saveErr != nil {
		return remote.SaveResult{}, f.saveErr
	}

	qty := decimal.NewFromInt(cases)
	if o, ok := f.overrides[title]; ok {
		qty = o
	}
	f.setExpectedLocked(title, qty)
	return remote.SaveResult{NewQty: &qty}, nil
}

// Commit records the batch and applies every item.
func (f *FakeInventory) Commit(_ context.Context, batch remote.Batch) (remote.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, batch)
	if f.commitErr != nil {
		return remote.CommitResult{}, f.commitErr
	}

	updated := 0
	for _, it := range batch.Items {
		if f.setExpectedLocked(it.ProductTitle, decimal.NewFromInt(it.CasesQty)) {
			updated++
		}
	}
	return remote.CommitResult{Updated: updated}, nil
}

// CatalogCalls returns how many times Catalog was called.
func (f *FakeInventory) CatalogCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalogCalls
}

// Saves returns every Save call in order.
func (f *FakeInventory) Saves() []SaveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SaveCall(nil), f.saves...)
}

// Commits returns every Commit call in order.
func (f *FakeInventory) Commits() []remote.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Batch(nil), f.commits...)
}

// Expected returns the store's current expected quantity for title.
func (f *FakeInventory) Expected(title string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.Title == title {
			return p.ExpectedQty, true
		}
	}
	return decimal.Zero, false
}

func (f *FakeInventory) setExpectedLocked(title string, qty decimal.Decimal) bool {
	for i := range f.products {
		if f.products[i].Title == title {
			f.products[i].ExpectedQty = qty
			return true
		}
	}
	return false
}
