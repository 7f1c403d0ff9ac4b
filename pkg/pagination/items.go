package pagination

import "github.com/bitwiseman/github-api/pkg/client"

// ItemIterator flattens a PageIterator into single items. Empty pages are
// skipped, so HasNext means at least one more item exists.
type ItemIterator[T any, P Page[T]] struct {
	pages   *PageIterator[T, P]
	items   []T
	pos     int
	page    P
	hasPage bool
}

// HasNext reports whether another item is available, fetching pages as
// needed.
func (it *ItemIterator[T, P]) HasNext() bool {
	for it.pos >= len(it.items) {
		if !it.pages.HasNext() {
			return false
		}
		page, err := it.pages.Next()
		if err != nil {
			return false
		}
		it.page = page
		it.hasPage = true
		it.items = page.Items()
		it.pos = 0
	}
	return true
}

// Next returns the next item.
func (it *ItemIterator[T, P]) Next() (T, error) {
	if !it.HasNext() {
		var zero T
		return zero, it.endErr()
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

// NextPage returns the unread items of the current page, fetching the
// next page first if the current one is used up.
func (it *ItemIterator[T, P]) NextPage() ([]T, error) {
	if !it.HasNext() {
		return nil, it.endErr()
	}
	rest := it.items[it.pos:]
	it.pos = len(it.items)
	return rest, nil
}

// NextPageArray is NextPage returning a copy the caller may keep or modify.
func (it *ItemIterator[T, P]) NextPageArray() ([]T, error) {
	rest, err := it.NextPage()
	if err != nil {
		return nil, err
	}
	out := make([]T, len(rest))
	copy(out, rest)
	return out, nil
}

// CurrentPage returns the page the last item came from.
func (it *ItemIterator[T, P]) CurrentPage() (P, bool) {
	return it.page, it.hasPage
}

// Err returns the error that ended the walk, if any.
func (it *ItemIterator[T, P]) Err() error {
	return it.pages.Err()
}

// FinalResponse returns the last page's response once every item has
// been consumed.
func (it *ItemIterator[T, P]) FinalResponse() (*client.Response[P], error) {
	if it.HasNext() {
		return nil, ErrNotExhausted
	}
	return it.pages.FinalResponse()
}

func (it *ItemIterator[T, P]) endErr() error {
	if err := it.pages.Err(); err != nil {
		return err
	}
	return ErrNoMoreElements
}
