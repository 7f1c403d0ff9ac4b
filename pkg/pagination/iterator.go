package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var githubPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "github_pages_fetched_total",
	Help: "Total number of pages fetched by pagination walks",
})

var (
	// ErrNoMoreElements is returned by Next after the walk is exhausted.
	ErrNoMoreElements = errors.New("no more elements")

	// ErrNotExhausted is returned by FinalResponse before the walk ends.
	ErrNotExhausted = errors.New("final response is not available until iteration is done")
)

// fetchError carries a mid-walk failure together with the page it was
// fetching. Public methods return the wrapped error unchanged.
type fetchError struct {
	url string
	err error
}

func (e *fetchError) Error() string {
	return fmt.Sprintf("fetch page %s: %v", e.url, e.err)
}

func (e *fetchError) Unwrap() error { return e.err }

func unwrapFetch(err error) error {
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.err
	}
	return err
}

// PageIterator fetches one page per Next call, following rel="next"
// links until the server stops sending them.
type PageIterator[T any, P Page[T]] struct {
	ctx         context.Context
	client      *client.Client
	initializer func(*T)
	logger      zerolog.Logger

	next    *client.Request
	seed    *P
	current P
	holding bool
	final   *client.Response[P]
	err     error
	fetched int
}

// HasNext reports whether another page is available, fetching it if
// needed. Repeated calls before Next do not fetch again.
func (it *PageIterator[T, P]) HasNext() bool {
	if it.holding {
		return true
	}
	if it.err != nil || (it.next == nil && it.seed == nil) {
		return false
	}
	it.fetch()
	return it.holding
}

// Next returns the next page. After the last page it returns
// ErrNoMoreElements, or the error that ended the walk.
func (it *PageIterator[T, P]) Next() (P, error) {
	if !it.HasNext() {
		var zero P
		if it.err != nil {
			return zero, unwrapFetch(it.err)
		}
		return zero, ErrNoMoreElements
	}
	page := it.current
	var zero P
	it.current = zero
	it.holding = false
	return page, nil
}

// Err returns the error that ended the walk, if any.
func (it *PageIterator[T, P]) Err() error {
	return unwrapFetch(it.err)
}

// FinalResponse returns the response of the last page once every page has
// been consumed.
func (it *PageIterator[T, P]) FinalResponse() (*client.Response[P], error) {
	if it.HasNext() {
		return nil, ErrNotExhausted
	}
	if it.err != nil {
		return nil, unwrapFetch(it.err)
	}
	if it.final == nil {
		return nil, ErrNotExhausted
	}
	return it.final, nil
}

// fetch retrieves the pending page, runs the initializer over its items
// and works out the request for the page after it.
func (it *PageIterator[T, P]) fetch() {
	if it.seed != nil {
		page := *it.seed
		it.seed = nil
		it.accept(page)
		it.final = client.NewResponse(http.StatusOK, nil, "", page)
		return
	}

	req := it.next
	reqURL := req.URLPath()
	if url, err := req.URL(it.client.APIURL()); err == nil {
		reqURL = url
	}

	resp, err := client.Fetch[P](it.ctx, it.client, req)
	if err != nil {
		it.next = nil
		it.err = &fetchError{url: reqURL, err: err}
		it.logger.Debug().Err(err).Str("url", reqURL).Int("pages", it.fetched).Msg("Pagination walk failed")
		return
	}

	githubPagesFetchedTotal.Inc()
	it.fetched++
	page := resp.Body()
	it.accept(page)

	link, ok := nextLink(resp.HeaderValues("Link"))
	if !ok {
		it.next = nil
		it.final = resp
		it.logger.Debug().Str("url", reqURL).Int("pages", it.fetched).Msg("Pagination walk complete")
		return
	}

	next, err := req.ToBuilder().ClearParams().SetRawURLPath(link).Build()
	if err != nil {
		it.next = nil
		it.err = &fetchError{url: link, err: err}
		return
	}
	it.next = next

	it.logger.Debug().
		Str("url", reqURL).
		Str("next", link).
		Int("items", len(page.Items())).
		Msg("Fetched page")
}

func (it *PageIterator[T, P]) accept(page P) {
	if it.initializer != nil {
		items := page.Items()
		for i := range items {
			it.initializer(&items[i])
		}
	}
	it.current = page
	it.holding = true
}
