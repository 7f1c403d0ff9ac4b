package pagination

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"

	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/bitwiseman/github-api/pkg/logging"
)

// Endpoint is a paginated GET request template. Every iterator it creates
// starts a fresh walk from the first page.
type Endpoint[T any, P Page[T]] struct {
	client      *client.Client
	req         *client.Request
	pageSize    int
	initializer func(*T)
	seed        *P
}

// NewEndpoint creates an endpoint for req. The initializer, if not nil,
// runs once on every item right after its page is decoded.
func NewEndpoint[T any, P Page[T]](c *client.Client, req *client.Request, initializer func(*T)) (*Endpoint[T, P], error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.Method() != http.MethodGet {
		return nil, fmt.Errorf("pagination requires GET (got %s)", req.Method())
	}
	return &Endpoint[T, P]{client: c, req: req, initializer: initializer}, nil
}

// List creates an endpoint returning bare JSON arrays.
func List[T any](c *client.Client, req *client.Request, initializer func(*T)) (*Endpoint[T, ArrayPage[T]], error) {
	return NewEndpoint[T, ArrayPage[T]](c, req, initializer)
}

// FromSlice returns an endpoint serving items as a single page without
// any network access.
func FromSlice[T any](items []T) *Endpoint[T, ArrayPage[T]] {
	page := ArrayPage[T](items)
	return &Endpoint[T, ArrayPage[T]]{seed: &page}
}

// WithPageSize returns a copy of the endpoint that sends per_page=size.
// Zero leaves the page size to the server.
func (e *Endpoint[T, P]) WithPageSize(size int) *Endpoint[T, P] {
	cp := *e
	cp.pageSize = size
	return &cp
}

// PageSize returns the configured per_page value.
func (e *Endpoint[T, P]) PageSize() int {
	return e.pageSize
}

// PageIterator starts a page-level walk.
func (e *Endpoint[T, P]) PageIterator(ctx context.Context) *PageIterator[T, P] {
	it := &PageIterator[T, P]{
		ctx:         ctx,
		client:      e.client,
		initializer: e.initializer,
		logger:      logging.NewLogger(logging.ComponentPagination),
	}

	if e.seed != nil {
		page := clonePage[T](*e.seed)
		it.seed = &page
		return it
	}

	req := e.req
	if e.pageSize > 0 {
		sized, err := e.req.ToBuilder().Set("per_page", e.pageSize).Build()
		if err != nil {
			it.err = &fetchError{url: e.req.URLPath(), err: err}
			return it
		}
		req = sized
	}
	it.next = req
	return it
}

// Iterator starts an item-level walk.
func (e *Endpoint[T, P]) Iterator(ctx context.Context) *ItemIterator[T, P] {
	return &ItemIterator[T, P]{pages: e.PageIterator(ctx)}
}

// ToSlice walks every page and returns all items in server order. A
// failed page fails the whole walk.
func (e *Endpoint[T, P]) ToSlice(ctx context.Context) ([]T, error) {
	pages := e.PageIterator(ctx)
	var out []T
	for pages.HasNext() {
		page, err := pages.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items()...)
	}
	if err := pages.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// All returns a single-use sequence over every item. A failure is
// yielded once with a zero item and ends the sequence.
func (e *Endpoint[T, P]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		items := e.Iterator(ctx)
		for items.HasNext() {
			item, err := items.Next()
			if !yield(item, err) || err != nil {
				return
			}
		}
		if err := items.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// clonePage copies array pages so a FromSlice endpoint can be walked
// more than once with a mutating initializer.
func clonePage[T any, P Page[T]](page P) P {
	if arr, ok := any(page).(ArrayPage[T]); ok {
		cp := make(ArrayPage[T], len(arr))
		copy(cp, arr)
		if out, ok := any(cp).(P); ok {
			return out
		}
	}
	return page
}

// SearchEndpoint is an endpoint over a /search API, whose pages carry
// the total match count.
type SearchEndpoint[T any] struct {
	*Endpoint[T, SearchPage[T]]

	mu    sync.Mutex
	first *SearchPage[T]
}

// Search creates an endpoint for a /search request.
func Search[T any](c *client.Client, req *client.Request, initializer func(*T)) (*SearchEndpoint[T], error) {
	e, err := NewEndpoint[T, SearchPage[T]](c, req, initializer)
	if err != nil {
		return nil, err
	}
	return &SearchEndpoint[T]{Endpoint: e}, nil
}

// WithPageSize returns a copy of the endpoint that sends per_page=size.
func (s *SearchEndpoint[T]) WithPageSize(size int) *SearchEndpoint[T] {
	return &SearchEndpoint[T]{Endpoint: s.Endpoint.WithPageSize(size)}
}

// TotalCount returns the number of matches GitHub reports. The first page
// is fetched once and remembered.
func (s *SearchEndpoint[T]) TotalCount(ctx context.Context) (int, error) {
	page, err := s.firstPage(ctx)
	if err != nil {
		return 0, err
	}
	return page.TotalCount, nil
}

// IsIncomplete reports whether GitHub timed out before finding every match.
func (s *SearchEndpoint[T]) IsIncomplete(ctx context.Context) (bool, error) {
	page, err := s.firstPage(ctx)
	if err != nil {
		return false, err
	}
	return page.IncompleteResults, nil
}

func (s *SearchEndpoint[T]) firstPage(ctx context.Context) (*SearchPage[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first != nil {
		return s.first, nil
	}
	page, err := s.PageIterator(ctx).Next()
	if err != nil {
		return nil, err
	}
	s.first = &page
	return s.first, nil
}
