package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name              string
		page, size, count int
		want              Pagination
	}{
		{"first page", 1, 10, 25, Pagination{Page: 1, Size: 10, Count: 25, Pages: 3}},
		{"page below one", -3, 10, 5, Pagination{Page: 1, Size: 10, Count: 5, Pages: 1}},
		{"zero size takes default", 2, 0, 45, Pagination{Page: 2, Size: 20, Count: 45, Pages: 3}},
		{"oversized takes default", 1, 101, 45, Pagination{Page: 1, Size: 20, Count: 45, Pages: 3}},
		{"max size kept", 1, 100, 100, Pagination{Page: 1, Size: 100, Count: 100, Pages: 1}},
		{"empty set", 1, 20, 0, Pagination{Page: 1, Size: 20, Count: 0, Pages: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPagination(tt.page, tt.size, tt.count)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaginationOffset(t *testing.T) {
	assert.Equal(t, 0, NewPagination(1, 10, 0).Offset())
	assert.Equal(t, 30, NewPagination(4, 10, 0).Offset())
}
