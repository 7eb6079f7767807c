package types

// Page size limits applied by NewPagination.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	Count int `json:"count"`
	Pages int `json:"pages"`
}

// ClampPage normalizes a requested page and size: a page below 1 becomes 1
// and a size outside (0, MaxPageSize] becomes DefaultPageSize.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}

// NewPagination builds the metadata of a page over count items.
func NewPagination(page, size, count int) Pagination {
	page, size = ClampPage(page, size)
	return Pagination{
		Page:  page,
		Size:  size,
		Count: count,
		Pages: (count + size - 1) / size,
	}
}

// Offset returns the number of items preceding the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}
