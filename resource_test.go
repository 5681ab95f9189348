package rwportal

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryOf(raw string) QueryFunc {
	values, _ := url.ParseQuery(raw)
	return func(key string, defaultValue ...string) string {
		if v := values.Get(key); v != "" {
			return v
		}
		if len(defaultValue) > 0 {
			return defaultValue[0]
		}
		return ""
	}
}

func TestParseListParams(t *testing.T) {
	p := ParseListParams(queryOf("page=3&limit=500&sortBy=date&sortOrder=ASC&status=pending&search=+lampu+&filter=me"), CapAll)
	assert.Equal(t, ListParams{
		Page:      3,
		PageSize:  MaxPageSize,
		SortKey:   "date",
		SortOrder: SortAsc,
		Status:    "pending",
		Search:    "lampu",
		Scope:     ScopeMine,
	}, p)

	p = ParseListParams(queryOf("page=-2&limit=abc&sortBy=amount&sortOrder=sideways"), CapAll)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, SortDesc, p.SortOrder)
	assert.Equal(t, ScopeAll, p.Scope)
}

func TestNormalizeDropsUnsupportedParams(t *testing.T) {
	p := ListParams{Page: 4, PageSize: 20, SortKey: "date", SortOrder: "asc", Status: "done", Search: "x", Scope: ScopeMine}

	got := p.Normalize(CapPaginate)
	assert.Equal(t, ListParams{Page: 4, PageSize: 20, Scope: ScopeAll}, got)

	got = p.Normalize(0)
	assert.Equal(t, ListParams{Scope: ScopeAll}, got)
	assert.Empty(t, got.Values())
}

func TestListParamsValues(t *testing.T) {
	p := ListParams{Page: 2, PageSize: 10, SortKey: "createdAt", SortOrder: SortDesc, Status: "in_progress", Scope: ScopeMine}
	assert.Equal(t, "filter=me&limit=10&page=2&sortBy=createdAt&sortOrder=desc&status=in_progress", p.QueryString())
	assert.Equal(t, "5", p.WithPage(5).Values().Get("page"))
	assert.Equal(t, 2, p.Page)
}

func TestNewPage(t *testing.T) {
	params := ListParams{Page: 2, PageSize: 10}

	page := NewPage([]int{1, 2, 3}, params, 23, 3)
	assert.True(t, page.HasTotal)
	assert.True(t, page.HasPrev)
	assert.True(t, page.HasNext)
	assert.Equal(t, 23, page.Total)

	page = NewPage([]int{1}, params, 11, -1)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNext)

	full := make([]int, 10)
	page = NewPage(full, params, -1, -1)
	assert.False(t, page.HasTotal)
	assert.True(t, page.HasNext)

	page = NewPage[int](nil, ListParams{}, -1, -1)
	assert.True(t, page.Empty())
	assert.NotNil(t, page.Items)
	assert.Equal(t, 1, page.TotalPages)
}

func TestResourceListDropsStaleResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context, p ListParams) (Page[string], error) {
		if p.Page == 1 {
			close(started)
			<-release
			return NewPage([]string{"old"}, p, 1, 1), nil
		}
		return NewPage([]string{"new"}, p, 1, 1), nil
	}
	list := NewResourceList("complaints", CapAll, fetch)

	var wg sync.WaitGroup
	var staleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, staleErr = list.Fetch(context.Background(), ListParams{Page: 1})
	}()
	<-started

	page, err := list.Fetch(context.Background(), ListParams{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, page.Items)

	close(release)
	wg.Wait()
	assert.ErrorIs(t, staleErr, ErrStaleResponse)

	current, ok := list.Current()
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, current.Items)
	assert.Equal(t, 2, list.LastParams().Page)
}

func TestResourceListSharedSequencer(t *testing.T) {
	seq := NewSequencer()
	fetch := func(ctx context.Context, p ListParams) (Page[int], error) {
		return NewPage([]int{p.Page}, p, -1, -1), nil
	}

	first := NewResourceList("users", CapPaginate, fetch, WithSequencer[int](seq))
	_, err := first.Fetch(context.Background(), ListParams{Page: 4})
	require.NoError(t, err)

	second := NewResourceList("users", CapPaginate, fetch, WithSequencer[int](seq))
	assert.Equal(t, 4, second.LastParams().Page)
}

func TestResourceListMutateRefetchesLastParams(t *testing.T) {
	var seen []ListParams
	fetch := func(ctx context.Context, p ListParams) (Page[int], error) {
		seen = append(seen, p)
		return NewPage([]int{len(seen)}, p, -1, -1), nil
	}
	list := NewResourceList("transactions", CapAll, fetch)

	_, err := list.Fetch(context.Background(), ListParams{Page: 3, Status: "income"})
	require.NoError(t, err)

	acted := false
	page, err := list.Mutate(context.Background(), func(ctx context.Context) error {
		acted = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, acted)
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, []int{2}, page.Items)

	boom := errors.New("boom")
	_, err = list.Mutate(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Len(t, seen, 2)
}

func TestResourceListMutateWithoutPriorFetch(t *testing.T) {
	var got ListParams
	list := NewResourceList("users", CapPaginate, func(ctx context.Context, p ListParams) (Page[int], error) {
		got = p
		return NewPage[int](nil, p, 0, 0), nil
	})

	_, err := list.Mutate(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, DefaultPageSize, got.PageSize)
}

func TestViewRegistry(t *testing.T) {
	reg := NewViewRegistry(0, 0)

	a := reg.Sequencer("tok-1", "complaints")
	assert.Same(t, a, reg.Sequencer("tok-1", "complaints"))
	assert.NotSame(t, a, reg.Sequencer("tok-1", "users"))
	assert.NotSame(t, a, reg.Sequencer("tok-2", "complaints"))

	a.Next(ListParams{Page: 9})
	reg.Forget("tok-1")

	fresh := reg.Sequencer("tok-1", "complaints")
	_, ok := fresh.LastParams()
	assert.False(t, ok)

	_, ok = reg.Sequencer("tok-2", "complaints").LastParams()
	assert.False(t, ok)
}
