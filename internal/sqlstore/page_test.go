package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource serves windows of items and records every fetch.
type sliceSource struct {
	items []int
	calls int
	fail  error
}

func (s *sliceSource) count(context.Context) (int, error) { return len(s.items), nil }

func (s *sliceSource) fetch(_ context.Context, limit, offset int) ([]int, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	if offset >= len(s.items) {
		return nil, nil
	}
	end := min(offset+limit, len(s.items))
	return s.items[offset:end], nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPaginate(t *testing.T) {
	src := &sliceSource{items: seq(45)}

	tests := []struct {
		name       string
		page, size int
		wantFirst  int
		wantLen    int
		wantPage   int
		wantSize   int
		wantPages  int
	}{
		{name: "first page", page: 1, size: 20, wantFirst: 0, wantLen: 20, wantPage: 1, wantSize: 20, wantPages: 3},
		{name: "last page is short", page: 3, size: 20, wantFirst: 40, wantLen: 5, wantPage: 3, wantSize: 20, wantPages: 3},
		{name: "page clamped up", page: -4, size: 10, wantFirst: 0, wantLen: 10, wantPage: 1, wantSize: 10, wantPages: 5},
		{name: "oversized page falls back", page: 1, size: 500, wantFirst: 0, wantLen: 20, wantPage: 1, wantSize: 20, wantPages: 3},
		{name: "past the end", page: 9, size: 20, wantLen: 0, wantPage: 9, wantSize: 20, wantPages: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, p, err := Paginate(context.Background(), tt.page, tt.size, src.count, src.fetch)
			require.NoError(t, err)
			assert.Len(t, items, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, items[0])
			}
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantSize, p.Size)
			assert.Equal(t, 45, p.Count)
			assert.Equal(t, tt.wantPages, p.Pages)
		})
	}
}

func TestIterate(t *testing.T) {
	t.Run("walks every batch", func(t *testing.T) {
		src := &sliceSource{items: seq(25)}
		var got []int
		for v, err := range Iterate(context.Background(), 10, src.fetch) {
			require.NoError(t, err)
			got = append(got, v)
		}
		assert.Equal(t, seq(25), got)
		assert.Equal(t, 3, src.calls)
	})

	t.Run("exact multiple needs a final empty batch", func(t *testing.T) {
		src := &sliceSource{items: seq(20)}
		n := 0
		for _, err := range Iterate(context.Background(), 10, src.fetch) {
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 20, n)
		assert.Equal(t, 3, src.calls)
	})

	t.Run("restarts per invocation", func(t *testing.T) {
		src := &sliceSource{items: seq(5)}
		it := Iterate(context.Background(), 2, src.fetch)
		for range 2 {
			var got []int
			for v, err := range it {
				require.NoError(t, err)
				got = append(got, v)
			}
			assert.Equal(t, seq(5), got)
		}
	})

	t.Run("stops when the consumer breaks", func(t *testing.T) {
		src := &sliceSource{items: seq(50)}
		for v := range Iterate(context.Background(), 10, src.fetch) {
			if v == 3 {
				break
			}
		}
		assert.Equal(t, 1, src.calls)
	})

	t.Run("yields fetch errors", func(t *testing.T) {
		boom := errors.New("boom")
		src := &sliceSource{items: seq(5), fail: boom}
		var errs []error
		for _, err := range Iterate(context.Background(), 10, src.fetch) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], boom)
	})
}
