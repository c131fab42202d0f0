package sites

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

func init() { register(slexy{}) }

// slexy has no plain raw endpoint; the view page embeds the paste in the
// document body, so content is recovered by converting the HTML wrapper.
type slexy struct{}

func (slexy) Name() string       { return "slexy" }
func (slexy) ListingURL() string { return "https://slexy.org/recent" }

func (slexy) ListPastes(listingBody []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(listingBody))
	if err != nil {
		return nil
	}
	var ids []string
	doc.Find(`a[href^="/view/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if id := strings.TrimPrefix(href, "/view/"); id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	})
	return uniqueInOrder(ids)
}

func (slexy) ContentURL(id string) string { return "https://slexy.org/view/" + id }

func (slexy) ExtractText(raw []byte) (string, error) {
	text, err := htmltomarkdown.ConvertString(string(raw))
	if err != nil {
		return "", fmt.Errorf("sites: slexy: convert view page: %w", err)
	}
	return text, nil
}

func (slexy) SlowDownMarker() string { return "" }
