package proxy

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestPick_EmptyPool(t *testing.T) {
	// WHAT: Pick on an empty pool returns nil.
	// WHY: Pool exhaustion falls back to ambient/direct, never halts.
	p := NewPool(nil)
	if got := p.Pick(); got != nil {
		t.Errorf("expected nil from empty pool, got %v", got)
	}
}

func TestRemove_NeverReusedUntilReplace(t *testing.T) {
	// WHAT: A removed endpoint is never picked again before a Replace.
	// WHY: A proxy that failed once stays out for the process lifetime;
	// only an explicit reload brings endpoints back.
	a := mustParse(t, "http://a.example:8080")
	b := mustParse(t, "http://b.example:8080")
	p := NewPool([]*url.URL{a, b})

	p.Remove(a)
	for i := 0; i < 200; i++ {
		if got := p.Pick(); got.String() == a.String() {
			t.Fatal("removed endpoint was picked again")
		}
	}

	p.Replace([]*url.URL{a})
	if got := p.Pick(); got == nil || got.String() != a.String() {
		t.Errorf("after Replace the reloaded endpoint should be pickable, got %v", got)
	}
}

func TestRemove_ConcurrentDoubleRemove(t *testing.T) {
	// WHAT: Concurrent removals of the same endpoint leave the pool intact.
	// WHY: Any worker may attribute a failure to the same proxy at once;
	// the set must not corrupt or double-remove.
	a := mustParse(t, "http://a.example:8080")
	b := mustParse(t, "http://b.example:8080")
	p := NewPool([]*url.URL{a, b})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Remove(a)
		}()
	}
	wg.Wait()

	if p.Len() != 1 {
		t.Fatalf("pool size: got %d, want 1", p.Len())
	}
	if got := p.Pick(); got.String() != b.String() {
		t.Errorf("surviving endpoint: got %v, want %v", got, b)
	}
}

func TestLoadFile(t *testing.T) {
	// WHAT: LoadFile parses one endpoint per line, skipping comments and
	// blanks, and rejects unknown schemes.
	// WHY: The proxies file is operator-maintained; startup and reload must
	// fail loudly on a malformed entry.
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# egress proxies\nhttp://a.example:8080\n\nsocks5://b.example:1080\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	endpoints, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("endpoints: got %d, want 2", len(endpoints))
	}
	if endpoints[1].Scheme != "socks5" {
		t.Errorf("scheme: got %q, want socks5", endpoints[1].Scheme)
	}

	bad := filepath.Join(t.TempDir(), "bad.txt")
	os.WriteFile(bad, []byte("ftp://nope.example:21\n"), 0o644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
