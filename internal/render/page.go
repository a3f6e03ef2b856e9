// Package render holds the functions that turn site sources into the values
// kept in caches: rendered pages, page templates, stylesheets and the site
// configuration.
package render

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/russross/blackfriday/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidHeader is returned when a page's front matter is not a YAML
// mapping of scalar values.
var ErrInvalidHeader = errors.New("invalid front matter")

const delim = "---"

// Page is a rendered Markdown page.
type Page struct {
	Meta     map[string]string
	Title    string
	Contents template.HTML
}

// RenderPage splits src into front matter and Markdown body and renders the
// body to HTML.
func RenderPage(_ context.Context, src string) (*Page, error) {
	header, body, ok := splitFrontMatter(src)
	meta := map[string]string{}
	if ok {
		var err error
		if meta, err = parseHeader(header); err != nil {
			return nil, err
		}
	}

	html := blackfriday.Run([]byte(body))
	return &Page{
		Meta:     meta,
		Title:    deriveTitle(meta, body),
		Contents: template.HTML(html), //nolint:gosec // rendered from site-owned Markdown
	}, nil
}

// splitFrontMatter separates a leading "---" delimited header from the body.
// Without a complete header the whole source is body.
func splitFrontMatter(src string) (header, body string, ok bool) {
	s := strings.ReplaceAll(strings.TrimLeft(src, " \t\r\n"), "\r\n", "\n")
	rest, found := strings.CutPrefix(s, delim+"\n")
	if !found {
		return "", src, false
	}
	if after, found := strings.CutPrefix(rest, delim+"\n"); found {
		return "", after, true
	}
	i := strings.Index(rest, "\n"+delim+"\n")
	if i < 0 {
		if h, found := strings.CutSuffix(rest, "\n"+delim); found {
			return h, "", true
		}
		return "", src, false
	}
	return rest[:i], rest[i+len(delim)+2:], true
}

func parseHeader(header string) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(header), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := scalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrInvalidHeader, k, err)
		}
		meta[k] = s
	}
	return meta, nil
}

// scalar formats a YAML value for use in templates. Lists of scalars are
// joined with ", "; nested mappings are rejected.
func scalar(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case time.Time:
		return v.Format(time.DateOnly), nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if _, nested := item.([]any); nested {
				return "", errors.New("nested list")
			}
			s, err := scalar(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

// deriveTitle returns the "title" header if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(meta map[string]string, body string) string {
	if t := meta["title"]; t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
