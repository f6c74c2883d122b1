package shared

import "math"

// Pagination contains metadata for paginated listings. Page is zero based.
type Pagination struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, size, total int) Pagination {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(size)))
	return Pagination{Page: page, Size: size, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	return p.Page * p.Size
}

// Page is a page of records plus its pagination metadata.
type Page[T any] struct {
	Items []T `json:"items"`
	Pagination
}

// NewPage wraps items with pagination metadata. A nil slice is returned as empty.
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: NewPagination(page, size, total)}
}
