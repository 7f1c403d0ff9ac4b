package pagination

// Page is one HTTP response's worth of items.
type Page[T any] interface {
	Items() []T
}

// ArrayPage is a page returned as a bare JSON array.
type ArrayPage[T any] []T

// Items returns the page elements.
func (p ArrayPage[T]) Items() []T { return p }

// SearchPage is a page returned by a /search endpoint.
type SearchPage[T any] struct {
	TotalCount        int  `json:"total_count"`
	IncompleteResults bool `json:"incomplete_results"`
	Results           []T  `json:"items"`
}

// Items returns the page elements.
func (p SearchPage[T]) Items() []T { return p.Results }
