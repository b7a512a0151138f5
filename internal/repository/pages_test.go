package repository

import (
	"context"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCursor struct {
	items []string
	calls []string
	err   error
	errAt int
}

func (f *fakeCursor) fetch(_ context.Context, after string, limit int) ([]string, error) {
	f.calls = append(f.calls, after)
	if f.err != nil && len(f.calls) == f.errAt {
		return nil, f.err
	}
	start := 0
	if after != "" {
		n, _ := strconv.Atoi(after)
		start = n + 1
	}
	end := start + limit
	if start > len(f.items) {
		start = len(f.items)
	}
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[start:end], nil
}

func seq(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func identity(s string) string { return s }

func TestPagesStopsOnShortPage(t *testing.T) {
	f := &fakeCursor{items: seq(5)}

	var got []string
	for page, err := range Pages(context.Background(), 2, f.fetch, identity) {
		require.NoError(t, err)
		got = append(got, page...)
	}

	assert.Equal(t, seq(5), got)
	assert.Equal(t, []string{"", "1", "3"}, f.calls)
}

func TestPagesExactMultipleEndsOnEmptyPage(t *testing.T) {
	f := &fakeCursor{items: seq(4)}

	pages := 0
	for _, err := range Pages(context.Background(), 2, f.fetch, identity) {
		require.NoError(t, err)
		pages++
	}

	assert.Equal(t, 2, pages)
	assert.Len(t, f.calls, 3)
}

func TestPagesYieldsErrorOnce(t *testing.T) {
	boom := errors.New("db down")
	f := &fakeCursor{items: seq(10), err: boom, errAt: 2}

	var errs []error
	pages := 0
	for page, err := range Pages(context.Background(), 3, f.fetch, identity) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pages += len(page) / 3
	}

	assert.Equal(t, 1, pages)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestPagesIsRestartable(t *testing.T) {
	f := &fakeCursor{items: seq(3)}
	pages := Pages(context.Background(), 2, f.fetch, identity)

	for range pages {
		break
	}
	count := 0
	for page, err := range pages {
		require.NoError(t, err)
		count += len(page)
	}

	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"", "", "1"}, f.calls)
}

func TestPagesHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeCursor{items: seq(3)}

	for _, err := range Pages(ctx, 2, f.fetch, identity) {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Empty(t, f.calls)
}
