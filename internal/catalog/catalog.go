// Package catalog holds the product snapshot loaded from the remote
// inventory store.
//
// A Catalog is replaced wholesale on every reload. The only field ever
// updated in place is a product's expected quantity, when a save confirms a
// new server value for that title.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Product is one catalog entry. Title is unique within a snapshot.
type Product struct {
	Title       string
	ImageURL    string
	ExpectedQty decimal.Decimal
	Location    string
}

// Catalog is an ordered product snapshot with a title index.
type Catalog struct {
	products []Product
	index    map[string]int
}

// NormalizeTitle trims and NFC-normalizes a title so the same product typed
// or fetched in different Unicode forms maps to one key.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// New builds a catalog from products, keeping the first entry for a
// duplicated title and dropping entries whose title is empty.
func New(products []Product) *Catalog {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		index:    make(map[string]int, len(products)),
	}
	for _, p := range products {
		p.Title = NormalizeTitle(p.Title)
		if p.Title == "" {
			continue
		}
		if _, dup := c.index[p.Title]; dup {
			continue
		}
		c.index[p.Title] = len(c.products)
		c.products = append(c.products, p)
	}
	return c
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

// Products returns a copy of the products in load order.
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Find looks up a product by title.
func (c *Catalog) Find(title string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	i, ok := c.index[NormalizeTitle(title)]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Has reports whether title is in the catalog.
func (c *Catalog) Has(title string) bool {
	_, ok := c.Find(title)
	return ok
}

// SetExpected overwrites the expected quantity of title with a
// server-confirmed value. It reports false when the title is unknown.
func (c *Catalog) SetExpected(title string, qty decimal.Decimal) bool {
	if c == nil {
		return false
	}
	i, ok := c.index[NormalizeTitle(title)]
	if !ok {
		return false
	}
	c.products[i].ExpectedQty = qty
	return true
}

// Search returns products whose title contains query, ignoring case.
// An empty query matches everything.
func Search(products []Product, query string) []Product {
	q := strings.ToLower(NormalizeTitle(query))
	if q == "" {
		return products
	}
	var out []Product
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), q) {
			out = append(out, p)
		}
	}
	return out
}
