package sites

import "regexp"

func init() { register(pastebin{}) }

// pastebin reads the public archive page. The raw endpoint serves plain
// text, so no post-processing is needed. The site answers bursts with a
// "Please slow down" page on HTTP 200.
type pastebin struct{}

// Archive links look like href="/Ab12Cd34"; site sections (tools, doc,
// archive pages themselves) use longer path segments and are skipped by
// the length anchor.
var pastebinID = regexp.MustCompile(`href="/([A-Za-z0-9]{8})"`)

func (pastebin) Name() string       { return "pastebin" }
func (pastebin) ListingURL() string { return "https://pastebin.com/archive" }

func (pastebin) ListPastes(listingBody []byte) []string {
	var ids []string
	for _, m := range pastebinID.FindAllSubmatch(listingBody, -1) {
		ids = append(ids, string(m[1]))
	}
	return uniqueInOrder(ids)
}

func (pastebin) ContentURL(id string) string { return "https://pastebin.com/raw/" + id }

func (pastebin) ExtractText(raw []byte) (string, error) { return string(raw), nil }

func (pastebin) SlowDownMarker() string { return "Please slow down" }
