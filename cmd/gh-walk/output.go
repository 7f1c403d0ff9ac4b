package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTable = "table"

	yamlIndent = 2
)

func renderJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding data to JSON: %w", err)
	}
	return nil
}

func renderYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(yamlIndent)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding data to YAML: %w", err)
	}
	return encoder.Close()
}

// renderItems writes walked items in the requested format. The table
// shows one summary row per item.
func renderItems(w io.Writer, format string, items []any) error {
	switch format {
	case outputYAML:
		return renderYAML(w, items)
	case outputTable:
		if len(items) == 0 {
			_, _ = io.WriteString(w, "No items found\n")
			return nil
		}
		table := tablewriter.NewWriter(w)
		table.Header("#", "ID", "Name", "URL")
		for i, item := range items {
			id, name, link := summarize(item)
			_ = table.Append(fmt.Sprint(i+1), id, name, link)
		}
		_ = table.Render()
		return nil
	default:
		if items == nil {
			items = []any{}
		}
		return renderJSON(w, items)
	}
}

// summarize picks the identifying fields most GitHub resources share.
func summarize(item any) (id, name, link string) {
	fields, ok := item.(map[string]any)
	if !ok {
		return "", fmt.Sprint(item), ""
	}
	if v, ok := fields["id"]; ok {
		id = fmt.Sprint(v)
	}
	if v, ok := fields["number"]; ok {
		id = "#" + fmt.Sprint(v)
	}
	for _, key := range []string{"full_name", "name", "login", "title", "path", "sha"} {
		if v, ok := fields[key].(string); ok && v != "" {
			name = v
			break
		}
	}
	if v, ok := fields["html_url"].(string); ok {
		link = v
	}
	return id, name, link
}

// requestFor turns a command line target into a GET request. Targets may
// be API paths with a query string or absolute URLs.
func requestFor(target string) (*client.Request, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return client.NewRequest().SetRawURLPath(target).Build()
	}

	path, rawQuery, _ := strings.Cut(target, "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	b := client.NewRequest().WithURLPath(path)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("parse query of %q: %w", target, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("parse query of %q: %w", target, err)
		}
		// Repeated keys stay separate parameters.
		b.With(key, value)
	}
	return b.Build()
}
