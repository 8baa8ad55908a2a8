// Package pagination provides page/limit pagination for list endpoints.
package pagination

import (
	"fmt"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int `json:"page"`
	Limit  int `json:"limit"`
}

// Default returns the first page with the default limit.
func Default() Page {
	return Page{Number: 1, Limit: DefaultLimit}
}

// Parse reads page and limit query values. Empty values take defaults;
// limits above MaxLimit are clamped.
func Parse(page, limit string) (Page, error) {
	p := Default()
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("invalid page %q", page)
		}
		p.Number = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("invalid limit %q", limit)
		}
		p.Limit = n
	}
	return p.Normalize(), nil
}

// Normalize fills zero values and clamps the limit.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Limit
}

// Result is one page of items plus totals.
type Result[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewResult builds a Result for items already sliced to p.
func NewResult[T any](items []T, p Page, total int) Result[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Result[T]{Items: items, Page: p.Number, Limit: p.Limit, Total: total, Pages: pages}
}

// Slice applies p to an in-memory list.
func Slice[T any](all []T, p Page) []T {
	off := p.Offset()
	if off >= len(all) {
		return nil
	}
	end := off + p.Normalize().Limit
	if end > len(all) {
		end = len(all)
	}
	return all[off:end]
}
