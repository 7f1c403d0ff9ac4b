// Package pagination walks GitHub list and search endpoints page by page.
//
// GitHub paginates with the Link response header: every page but the last
// carries a rel="next" URL, already encoded by the server, that the
// iterator requests verbatim. An iterator is lazy, single-pass and not
// safe for concurrent use.
//
// Example usage:
//
//	req, _ := client.NewRequest().WithURLPath("/repos", owner, repo, "issues").With("state", "open").Build()
//	issues, _ := pagination.List[Issue](c, req, nil)
//	for issue, err := range issues.WithPageSize(100).All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(issue.Title)
//	}
//
// Two page shapes are supported through the Page interface: ArrayPage for
// endpoints returning a bare JSON array and SearchPage for the /search
// endpoints, which nest the items next to total_count and
// incomplete_results. The walk is identical for both.
//
// BatchFetcher walks several endpoints concurrently with a bounded worker
// pool. Pages of a single endpoint are always fetched in order, since each
// next URL is only known once the previous page arrives.
package pagination
