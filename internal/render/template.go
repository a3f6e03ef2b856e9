package render

import (
	"context"
	"fmt"
	"html/template"
	"io"

	"github.com/starford/leaf/internal/storage"
)

// PageData is what page templates are executed with.
type PageData struct {
	Page       *Page
	Site       *SiteConfig
	URL        string
	LiveReload bool
}

// ParseTemplate compiles an html/template page layout.
func ParseTemplate(_ context.Context, src string) (*template.Template, error) {
	tpl, err := template.New("page").Funcs(template.FuncMap{
		"pageURL": storage.PageURL,
	}).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	return tpl, nil
}

// Execute renders data through tpl.
func Execute(w io.Writer, tpl *template.Template, data PageData) error {
	if err := tpl.Execute(w, data); err != nil {
		return fmt.Errorf("render: execute template: %w", err)
	}
	return nil
}
