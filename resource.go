package rwportal

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Scope narrows a list to the caller's own records.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeMine Scope = "mine"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Capabilities are the optional list features a view supports.
type Capabilities uint8

const (
	CapPaginate Capabilities = 1 << iota
	CapSort
	CapFilter
	CapSearch
	CapScope

	CapAll = CapPaginate | CapSort | CapFilter | CapSearch | CapScope
)

func (c Capabilities) Has(f Capabilities) bool {
	return c&f == f
}

// ListParams are the inputs of a list fetch.
type ListParams struct {
	Page      int
	PageSize  int
	SortKey   string
	SortOrder string
	Status    string
	Search    string
	Scope     Scope
}

// QueryFunc reads a query parameter, as fiber's Ctx.Query does.
type QueryFunc func(key string, defaultValue ...string) string

// ParseListParams reads list parameters from a query string using the
// API's names: page, limit, sortBy, sortOrder, status, search, filter=me.
func ParseListParams(query QueryFunc, caps Capabilities) ListParams {
	p := ListParams{
		SortKey:   query("sortBy"),
		SortOrder: query("sortOrder"),
		Status:    query("status"),
		Search:    query("search"),
		Scope:     ScopeAll,
	}
	p.Page, _ = strconv.Atoi(query("page"))
	p.PageSize, _ = strconv.Atoi(query("limit"))
	if query("filter") == "me" || Scope(query("scope")) == ScopeMine {
		p.Scope = ScopeMine
	}
	return p.Normalize(caps)
}

// Normalize clamps values and drops parameters the view does not support.
func (p ListParams) Normalize(caps Capabilities) ListParams {
	if !caps.Has(CapPaginate) {
		p.Page, p.PageSize = 0, 0
	} else {
		if p.Page < 1 {
			p.Page = 1
		}
		if p.PageSize < 1 {
			p.PageSize = DefaultPageSize
		}
		if p.PageSize > MaxPageSize {
			p.PageSize = MaxPageSize
		}
	}

	if !caps.Has(CapSort) {
		p.SortKey, p.SortOrder = "", ""
	} else {
		p.SortKey = strings.TrimSpace(p.SortKey)
		p.SortOrder = strings.ToLower(strings.TrimSpace(p.SortOrder))
		if p.SortOrder != SortAsc && p.SortOrder != SortDesc {
			p.SortOrder = ""
		}
		if p.SortKey != "" && p.SortOrder == "" {
			p.SortOrder = SortDesc
		}
	}

	if !caps.Has(CapFilter) {
		p.Status = ""
	}
	p.Status = strings.TrimSpace(p.Status)

	if !caps.Has(CapSearch) {
		p.Search = ""
	}
	p.Search = strings.TrimSpace(p.Search)

	if !caps.Has(CapScope) || p.Scope != ScopeMine {
		p.Scope = ScopeAll
	}
	return p
}

// Values encodes the params for the API query string.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("limit", strconv.Itoa(p.PageSize))
	}
	if p.SortKey != "" {
		v.Set("sortBy", p.SortKey)
		v.Set("sortOrder", p.SortOrder)
	}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Scope == ScopeMine {
		v.Set("filter", "me")
	}
	return v
}

// QueryString is the encoded query used for page links.
func (p ListParams) QueryString() string {
	return p.Values().Encode()
}

// WithPage returns a copy of p pointing at page n.
func (p ListParams) WithPage(n int) ListParams {
	p.Page = n
	return p
}

// Pagination describes where a page sits in the collection. Totals are
// only set when the API reported them.
type Pagination struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	HasTotal   bool
	HasPrev    bool
	HasNext    bool
}

// Page is one fetched slice of a collection.
type Page[T any] struct {
	Items  []T
	Params ListParams
	Pagination
}

func (p Page[T]) Empty() bool {
	return len(p.Items) == 0
}

// NewPage assembles a page. total and totalPages are the API's numbers,
// negative when the response did not carry them; in that case the next
// page is assumed to exist only when this page came back full.
func NewPage[T any](items []T, params ListParams, total, totalPages int) Page[T] {
	if items == nil {
		items = []T{}
	}

	page := Page[T]{
		Items:  items,
		Params: params,
		Pagination: Pagination{
			Page:     params.Page,
			PageSize: params.PageSize,
		},
	}

	if params.Page == 0 {
		page.Total = len(items)
		page.TotalPages = 1
		page.HasTotal = true
		return page
	}

	page.HasPrev = params.Page > 1

	switch {
	case totalPages >= 0:
		page.TotalPages = totalPages
		page.Total = total
		if total < 0 {
			page.Total = 0
		}
		page.HasTotal = true
		page.HasNext = params.Page < totalPages
	case total >= 0:
		page.Total = total
		page.TotalPages = (total + params.PageSize - 1) / params.PageSize
		page.HasTotal = true
		page.HasNext = params.Page < page.TotalPages
	default:
		page.HasNext = len(items) >= params.PageSize
	}
	return page
}

// Fetcher loads one page of a collection.
type Fetcher[T any] func(ctx context.Context, params ListParams) (Page[T], error)

// Sequencer hands out request ids for one list view. Only the result of
// the most recently issued id may be committed.
type Sequencer struct {
	mu         sync.Mutex
	latest     uint64
	lastParams ListParams
	hasParams  bool
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next registers a new fetch with params and returns its id.
func (s *Sequencer) Next(params ListParams) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	s.lastParams = params
	s.hasParams = true
	return s.latest
}

// IsLatest reports whether id is still the newest fetch.
func (s *Sequencer) IsLatest(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id == s.latest
}

// LastParams returns the params of the newest fetch.
func (s *Sequencer) LastParams() (ListParams, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParams, s.hasParams
}

// ResourceList is the list view pattern shared by every resource: fetch
// with params, render, mutate, refetch with the last params.
type ResourceList[T any] struct {
	name    string
	caps    Capabilities
	fetch   Fetcher[T]
	seq     *Sequencer
	metrics *Metrics
	logger  Logger

	mu      sync.Mutex
	current Page[T]
	fetched bool
}

type ResourceListOption[T any] func(*ResourceList[T]) *ResourceList[T]

// WithSequencer shares request sequencing across ResourceList instances
// that render the same view.
func WithSequencer[T any](seq *Sequencer) ResourceListOption[T] {
	return func(r *ResourceList[T]) *ResourceList[T] {
		if seq != nil {
			r.seq = seq
		}
		return r
	}
}

func WithListMetrics[T any](m *Metrics) ResourceListOption[T] {
	return func(r *ResourceList[T]) *ResourceList[T] {
		r.metrics = m
		return r
	}
}

func WithListLogger[T any](l Logger) ResourceListOption[T] {
	return func(r *ResourceList[T]) *ResourceList[T] {
		if l != nil {
			r.logger = l
		}
		return r
	}
}

func NewResourceList[T any](name string, caps Capabilities, fetch Fetcher[T], opts ...ResourceListOption[T]) *ResourceList[T] {
	r := &ResourceList[T]{
		name:   name,
		caps:   caps,
		fetch:  fetch,
		seq:    NewSequencer(),
		logger: defLogger{},
	}
	for _, opt := range opts {
		r = opt(r)
	}
	return r
}

func (r *ResourceList[T]) Name() string               { return r.name }
func (r *ResourceList[T]) Capabilities() Capabilities { return r.caps }

// Fetch loads a page. When a newer Fetch for the same view was issued
// before this one resolved, the result is dropped and ErrStaleResponse
// is returned.
func (r *ResourceList[T]) Fetch(ctx context.Context, params ListParams) (Page[T], error) {
	params = params.Normalize(r.caps)
	id := r.seq.Next(params)

	page, err := r.fetch(ctx, params)

	if !r.seq.IsLatest(id) {
		r.metrics.staleResponse(r.name)
		r.logger.Debug("dropping stale list response", "view", r.name, "request_id", id)
		return Page[T]{}, ErrStaleResponse
	}

	if err != nil {
		return Page[T]{}, err
	}

	page.Params = params
	r.mu.Lock()
	r.current = page
	r.fetched = true
	r.mu.Unlock()
	return page, nil
}

// Mutate runs action and, when it succeeds, refetches with the last used
// params so the view reflects the change.
func (r *ResourceList[T]) Mutate(ctx context.Context, action func(ctx context.Context) error) (Page[T], error) {
	if err := action(ctx); err != nil {
		return Page[T]{}, err
	}

	params, ok := r.seq.LastParams()
	if !ok {
		params = ListParams{}.Normalize(r.caps)
	}

	page, err := r.Fetch(ctx, params)
	if goerrors.Is(err, ErrStaleResponse) {
		current, _ := r.Current()
		return current, nil
	}
	return page, err
}

// Current returns the last committed page.
func (r *ResourceList[T]) Current() (Page[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.fetched
}

// LastParams returns the params of the newest fetch for this view.
func (r *ResourceList[T]) LastParams() ListParams {
	params, ok := r.seq.LastParams()
	if !ok {
		return ListParams{}.Normalize(r.caps)
	}
	return params
}
