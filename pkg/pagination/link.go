package pagination

import "strings"

// nextLink returns the rel="next" URL of a Link header, if any. Values
// of a repeated header are treated as one comma-separated list.
func nextLink(values []string) (string, bool) {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if !strings.HasSuffix(token, `rel="next"`) {
				continue
			}
			start := strings.Index(token, "<")
			end := strings.Index(token, ">")
			if start < 0 || end <= start+1 {
				continue
			}
			return token[start+1 : end], true
		}
	}
	return "", false
}
