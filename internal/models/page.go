package models

// NameCount is one leaderboard row.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Page is one server-delivered slice of a paginated list.
type Page[T any] struct {
	Items         []T `json:"items"`
	PageIndex     int `json:"page_index"`
	TotalPages    int `json:"total_pages"`
	PageSize      int `json:"page_size"`
	TotalElements int `json:"total_elements"`
}

// InRange reports whether index addresses an existing page.
func (p Page[T]) InRange(index int) bool {
	return index >= 0 && index < p.TotalPages
}

// HasNext reports whether a page follows this one.
func (p Page[T]) HasNext() bool {
	return p.PageIndex+1 < p.TotalPages
}

// HasPrev reports whether a page precedes this one.
func (p Page[T]) HasPrev() bool {
	return p.PageIndex > 0
}

// Rank returns the 1-based position of the i-th item across all pages.
func (p Page[T]) Rank(i int) int {
	return i + 1 + p.PageIndex*p.PageSize
}
