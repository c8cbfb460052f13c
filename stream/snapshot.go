package stream

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Media is an embedded player source found on the page.
type Media struct {
	Tag string `json:"tag"`
	Src string `json:"src"`
}

// Snapshot is a summary of the page shown by the viewer.
type Snapshot struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Media   []Media `json:"media"`
	Reverts int     `json:"reverts"`
}

// ParseSnapshot extracts the title and media sources from a page.
// Relative sources are resolved against the page URL.
func ParseSnapshot(p Page) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{URL: p.URL, Title: strings.TrimSpace(p.Title), Media: []Media{}}
	if snap.Title == "" {
		snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	base, _ := url.Parse(p.URL)
	seen := make(map[string]bool)
	doc.Find("video, audio, source, iframe, embed").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			src, ok = s.Attr("data-src")
		}
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			return
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		if seen[src] {
			return
		}
		seen[src] = true
		snap.Media = append(snap.Media, Media{Tag: goquery.NodeName(s), Src: src})
	})
	return snap, nil
}
