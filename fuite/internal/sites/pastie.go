package sites

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

func init() { register(pastie{}) }

// pastie serves raw content wrapped in a <pre> block with entity-encoded
// text; stripping the markup and unescaping entities recovers the paste.
type pastie struct{}

var pastieStrip = bluemonday.StrictPolicy()

func (pastie) Name() string       { return "pastie" }
func (pastie) ListingURL() string { return "https://pastie.org/pastes" }

func (pastie) ListPastes(listingBody []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(listingBody))
	if err != nil {
		return nil
	}
	var ids []string
	doc.Find(`a[href*="/pastes/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		idx := strings.LastIndex(href, "/pastes/")
		id := href[idx+len("/pastes/"):]
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	})
	return uniqueInOrder(ids)
}

func (pastie) ContentURL(id string) string { return "https://pastie.org/pastes/" + id + "/text" }

func (pastie) ExtractText(raw []byte) (string, error) {
	stripped := pastieStrip.Sanitize(string(raw))
	return html.UnescapeString(stripped), nil
}

func (pastie) SlowDownMarker() string { return "" }
