package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/leaf/internal/cache"
	"github.com/starford/leaf/internal/testutil"
)

func TestRenderPage_FrontMatterAndBody(t *testing.T) {
	src := "---\ntitle: Hello\ntags:\n  - go\n  - leaf\ndraft: false\n---\n# Heading\nBody text.\n"
	p, err := RenderPage(context.Background(), src)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if p.Title != "Hello" {
		t.Errorf("title = %q, want Hello", p.Title)
	}
	if p.Meta["tags"] != "go, leaf" {
		t.Errorf("tags = %q", p.Meta["tags"])
	}
	if p.Meta["draft"] != "false" {
		t.Errorf("draft = %q", p.Meta["draft"])
	}
	if !strings.Contains(string(p.Contents), "<h1>Heading</h1>") {
		t.Errorf("contents = %q", p.Contents)
	}
	if strings.Contains(string(p.Contents), "title:") {
		t.Error("front matter leaked into contents")
	}
}

func TestRenderPage_NoFrontMatter(t *testing.T) {
	p, err := RenderPage(context.Background(), "# Hi")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(p.Contents)); got != "<h1>Hi</h1>" {
		t.Errorf("contents = %q, want <h1>Hi</h1>", got)
	}
	if p.Title != "Hi" {
		t.Errorf("title = %q, want Hi", p.Title)
	}
	if len(p.Meta) != 0 {
		t.Errorf("meta = %v, want empty", p.Meta)
	}
}

func TestRenderPage_InvalidHeader(t *testing.T) {
	cases := []string{
		"---\n: invalid: yaml: {{{\n---\nBody\n",
		"---\n- a\n- b\n---\nBody\n",
		"---\nauthor:\n  name: x\n---\nBody\n",
	}
	for _, src := range cases {
		if _, err := RenderPage(context.Background(), src); !errors.Is(err, ErrInvalidHeader) {
			t.Errorf("RenderPage(%q) err = %v, want ErrInvalidHeader", src, err)
		}
	}
}

func TestSplitFrontMatter(t *testing.T) {
	cases := []struct {
		src, header, body string
		ok                bool
	}{
		{"---\na: 1\n---\nbody", "a: 1", "body", true},
		{"\n\n---\na: 1\n---\nbody", "a: 1", "body", true},
		{"---\r\na: 1\r\n---\r\nbody", "a: 1", "body", true},
		{"---\n---\nbody", "", "body", true},
		{"---\na: 1\n---", "a: 1", "", true},
		{"---\na: 1\nno close", "", "---\na: 1\nno close", false},
		{"body only", "", "body only", false},
	}
	for _, c := range cases {
		h, b, ok := splitFrontMatter(c.src)
		if h != c.header || b != c.body || ok != c.ok {
			t.Errorf("splitFrontMatter(%q) = %q, %q, %v; want %q, %q, %v", c.src, h, b, ok, c.header, c.body, c.ok)
		}
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	if got := deriveTitle(nil, "some text\n# My Heading\nmore"); got != "My Heading" {
		t.Errorf("title = %q, want My Heading", got)
	}
	if got := deriveTitle(map[string]string{"title": "FM"}, "# H1"); got != "FM" {
		t.Errorf("title = %q, want FM", got)
	}
}

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate(context.Background(), `<title>{{.Page.Title}}</title>{{.Page.Contents}}`)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := RenderPage(context.Background(), "# <Hi>")
	var sb strings.Builder
	if err := Execute(&sb, tpl, PageData{Page: p, Site: DefaultSiteConfig()}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "<title>&lt;Hi&gt;</title>") {
		t.Errorf("title not escaped: %s", sb.String())
	}

	if _, err := ParseTemplate(context.Background(), "{{.Page"); err == nil {
		t.Error("malformed template should fail")
	}
}

func TestCompileStylesheet(t *testing.T) {
	out, err := CompileStylesheet(context.Background(), "h1 {\n  color : red ;\n}\n")
	if err != nil {
		t.Fatal(err)
	}
	if out != "h1{color:red}" {
		t.Errorf("css = %q", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := offload(ctx, func() (string, error) {
		time.Sleep(time.Second)
		return "", nil
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestParseSiteConfig(t *testing.T) {
	cfg, err := ParseSiteConfig(context.Background(), "title: Home\nallowed_extensions: [svg, .PNG]\n")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Title != "Home" {
		t.Errorf("title = %q", cfg.Title)
	}
	if !cfg.Allows("svg") || !cfg.Allows(".png") || cfg.Allows("exe") || cfg.Allows("") {
		t.Errorf("allowed = %v", cfg.AllowedExtensions)
	}

	if _, err := ParseSiteConfig(context.Background(), "allowed_extension: [svg]\n"); err == nil {
		t.Error("unknown key should be rejected")
	}
	if cfg, err := ParseSiteConfig(context.Background(), ""); err != nil || cfg.Title != "" {
		t.Errorf("empty config = %+v, %v", cfg, err)
	}
}

// TestPageCacheScenario walks a page through edit and deletion behind a cache.
func TestPageCacheScenario(t *testing.T) {
	root, store := testutil.TestSite(t)
	clock := clockwork.NewFakeClock()
	html := func(ctx context.Context, src string) (string, error) {
		p, err := RenderPage(ctx, src)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(p.Contents)), nil
	}
	c := cache.New(store, "page.md", "", html, cache.WithClock(clock))
	ctx := context.Background()
	mtime := time.Unix(1_700_000_000, 0)

	testutil.WriteFile(t, root, "page.md", "# Hi", mtime)
	v, err := c.Load(ctx)
	if err != nil || v != "<h1>Hi</h1>" {
		t.Fatalf("first load = %q, %v", v, err)
	}

	testutil.WriteFile(t, root, "page.md", "# Hi!", mtime.Add(time.Second))
	clock.Advance(cache.DefaultInterval)
	v, err = c.Load(ctx)
	if err != nil || v != "<h1>Hi!</h1>" {
		t.Fatalf("after edit = %q, %v", v, err)
	}

	testutil.RemoveFile(t, root, "page.md")
	clock.Advance(cache.DefaultInterval)
	v, err = c.Load(ctx)
	if v != "<h1>Hi!</h1>" {
		t.Errorf("after delete = %q, want last good value", v)
	}
	if !errors.Is(err, cache.ErrRead) {
		t.Errorf("err = %v, want ErrRead", err)
	}
}

func TestPageCache_MalformedHeaderKeepsLastGood(t *testing.T) {
	root, store := testutil.TestSite(t)
	clock := clockwork.NewFakeClock()
	c := cache.New[*Page](store, "page.md", nil, RenderPage, cache.WithClock(clock))
	mtime := time.Unix(1_700_000_000, 0)

	testutil.WriteFile(t, root, "page.md", "---\ntitle: Good\n---\nbody", mtime)
	good, err := c.Load(context.Background())
	if err != nil || good == nil || good.Title != "Good" {
		t.Fatalf("load = %+v, %v", good, err)
	}

	testutil.WriteFile(t, root, "page.md", "---\ntitle: [unclosed\n---\nbody", mtime.Add(time.Second))
	clock.Advance(cache.DefaultInterval)
	p, err := c.Load(context.Background())
	if p != good {
		t.Error("malformed page should keep the last good value")
	}
	if !errors.Is(err, cache.ErrCompute) || !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("err = %v, want ErrCompute wrapping ErrInvalidHeader", err)
	}
}
