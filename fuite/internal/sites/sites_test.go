package sites

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestByName(t *testing.T) {
	// WHAT: Registered names resolve; unknown names return ErrUnknownSite.
	// WHY: An unknown site in configuration must fail startup, not a poll.
	for _, name := range []string{"pastebin", "slexy", "pastie"} {
		a, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%s): %v", name, err)
		}
		if a.Name() != name {
			t.Errorf("Name: got %q, want %q", a.Name(), name)
		}
	}
	if _, err := ByName("ghostbin"); !errors.Is(err, ErrUnknownSite) {
		t.Errorf("expected ErrUnknownSite, got: %v", err)
	}
}

func TestPastebin_ListPastes(t *testing.T) {
	// WHAT: The archive page yields 8-char identifiers in listing order,
	// deduplicated, ignoring non-paste links.
	// WHY: Listing order drives processing order within a site.
	listing := `
<table class="maintable">
<tr><td><a href="/Ab12Cd34">leaked stuff</a></td></tr>
<tr><td><a href="/Zz99Yy88">more</a></td></tr>
<tr><td><a href="/Ab12Cd34">dup link</a></td></tr>
<tr><td><a href="/archive/python">section</a></td></tr>
<tr><td><a href="/doc_api">docs</a></td></tr>
</table>`
	got := pastebin{}.ListPastes([]byte(listing))
	want := []string{"Ab12Cd34", "Zz99Yy88"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ids: got %v, want %v", got, want)
	}
}

func TestPastebin_ContentURLAndMarker(t *testing.T) {
	// WHAT: Raw URL and slow-down marker for pastebin.
	// WHY: The fetcher needs both to retrieve and classify responses.
	a := pastebin{}
	if got := a.ContentURL("Ab12Cd34"); got != "https://pastebin.com/raw/Ab12Cd34" {
		t.Errorf("ContentURL: got %q", got)
	}
	if a.SlowDownMarker() == "" {
		t.Error("pastebin must declare a slow-down marker")
	}
}

func TestSlexy_ListPastes(t *testing.T) {
	// WHAT: View links on the recent page become identifiers.
	// WHY: goquery extraction is the site-specific listing knowledge.
	listing := `<html><body>
<a href="/view/s2Fv6K">paste one</a>
<a href="/view/s9QqXz">paste two</a>
<a href="/about">about</a>
</body></html>`
	got := slexy{}.ListPastes([]byte(listing))
	want := []string{"s2Fv6K", "s9QqXz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ids: got %v, want %v", got, want)
	}
}

func TestSlexy_ExtractText(t *testing.T) {
	// WHAT: The HTML view page converts to plain text.
	// WHY: Rule matching needs text, not the markup wrapper.
	raw := `<html><body><div class="paste"><p>password=real123</p></div></body></html>`
	text, err := slexy{}.ExtractText([]byte(raw))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "password=real123") {
		t.Errorf("text: got %q", text)
	}
	if strings.Contains(text, "<div") {
		t.Errorf("markup should be gone, got %q", text)
	}
}

func TestPastie_ListPastes(t *testing.T) {
	// WHAT: Paste links on the listing page become identifiers.
	// WHY: Same contract, different markup.
	listing := `<html><body>
<a href="https://pastie.org/pastes/abc123">one</a>
<a href="/pastes/def456">two</a>
</body></html>`
	got := pastie{}.ListPastes([]byte(listing))
	want := []string{"abc123", "def456"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ids: got %v, want %v", got, want)
	}
}

func TestPastie_ExtractText(t *testing.T) {
	// WHAT: The <pre>-wrapped raw view strips to unescaped plain text.
	// WHY: Entity-encoded content must match rules on its real characters.
	raw := `<pre>user=admin&amp;pass=hunter2 &lt;internal&gt;</pre>`
	text, err := pastie{}.ExtractText([]byte(raw))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "user=admin&pass=hunter2 <internal>") {
		t.Errorf("text: got %q", text)
	}
}
