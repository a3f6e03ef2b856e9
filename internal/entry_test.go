package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/leaf/internal/cache"
)

func TestSetup(t *testing.T) {
	root := filepath.Join(t.TempDir(), "site")
	cfg := NewDefaultConfig()
	cfg.Site.Root = root

	var logs bytes.Buffer
	rt, err := setup([]Option{WithConfig(cfg), WithLogOutput(&logs), WithVersion("1.2.3")}, true)
	if err != nil {
		t.Fatal(err)
	}
	if rt.version != "1.2.3" {
		t.Errorf("version = %q", rt.version)
	}
	if !strings.Contains(logs.String(), `"msg":"Configuration loaded"`) {
		t.Errorf("logs = %s", logs.String())
	}

	if err := os.WriteFile(filepath.Join(root, "page.md"), []byte("# Home"), 0o644); err != nil {
		t.Fatal(err)
	}
	body, err := rt.site.RenderPage(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "<h1>Home</h1>") {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(string(body), "EventSource") {
		t.Error("live reload should be enabled when serving with watch on")
	}
	if rt.tracker.Count(cache.EventRefreshed) == 0 {
		t.Error("tracker did not observe the refresh")
	}
}

func TestSetup_RequiresConfig(t *testing.T) {
	if _, err := setup(nil, true); err == nil {
		t.Fatal("setup without config should fail")
	}
}
