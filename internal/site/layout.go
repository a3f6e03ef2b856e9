package site

import (
	"context"
	"html/template"

	"github.com/starford/leaf/internal/render"
)

// defaultLayout is used until the site's own layout loads.
var defaultLayout = func() *template.Template {
	tpl, err := render.ParseTemplate(context.Background(), defaultLayoutSrc)
	if err != nil {
		panic(err)
	}
	return tpl
}()

const defaultLayoutSrc = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{with .Page.Title}}{{.}}{{with $.Site.Title}} | {{.}}{{end}}{{else}}{{.Site.Title}}{{end}}</title>
<link rel="stylesheet" href="/default.css">
</head>
<body>
{{.Page.Contents}}
{{- if .LiveReload}}
<script>new EventSource("/_live").addEventListener("site.reload", function () { location.reload(); });</script>
{{- end}}
</body>
</html>
`
