package render

import (
	"context"
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

const cssMediaType = "text/css"

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc(cssMediaType, css.Minify)
	return m
}()

// CompileStylesheet minifies a stylesheet. The work runs on its own
// goroutine so a caller whose ctx ends is released immediately.
func CompileStylesheet(ctx context.Context, src string) (string, error) {
	return offload(ctx, func() (string, error) {
		out, err := minifier.String(cssMediaType, src)
		if err != nil {
			return "", fmt.Errorf("render: stylesheet: %w", err)
		}
		return out, nil
	})
}

// offload runs fn on a separate goroutine and waits for it or for ctx.
func offload[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
