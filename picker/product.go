package picker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/storage"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewBrowserClient returns an HTTP client tuned for fetching shop pages.
func NewBrowserClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     false,
			TLSNextProto:          make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// ProductPagePicker picks the garment image from a shop's product page.
// An empty URL counts as a cancelled pick.
type ProductPagePicker struct {
	URL     string
	Client  *http.Client
	Store   storage.ObjectStore
	Options Options

	// MaxBytes caps the image size; zero means MaxImageSize.
	MaxBytes int64
}

// NewProductPagePicker creates a picker for productURL.
func NewProductPagePicker(productURL string, store storage.ObjectStore) *ProductPagePicker {
	return &ProductPagePicker{URL: productURL, Client: NewBrowserClient(), Store: store, Options: DefaultOptions}
}

func (p *ProductPagePicker) Pick(ctx context.Context, role models.Role) (models.Selection, bool, error) {
	if strings.TrimSpace(p.URL) == "" {
		return models.Selection{}, false, nil
	}
	doc, err := p.fetchDocument(ctx, p.URL)
	if err != nil {
		return models.Selection{}, false, err
	}
	imageURL, ok := ProductImage(doc, p.URL)
	if !ok {
		return models.Selection{}, false, fmt.Errorf("no product image found on %s", p.URL)
	}
	data, err := fetch(ctx, p.Client, imageURL, p.MaxBytes)
	if err != nil {
		return models.Selection{}, false, fmt.Errorf("failed to download product image: %w", err)
	}
	sel, err := editAndStore(ctx, p.Store, p.Options, role, data)
	if err != nil {
		return models.Selection{}, false, err
	}
	return sel, true, nil
}

// ProductImage finds the main product image of a page: og:image, then
// twitter:image, then the first img with a usable src. Relative URLs are
// resolved against pageURL.
func ProductImage(doc *goquery.Document, pageURL string) (string, bool) {
	candidates := []string{
		doc.Find(`meta[property="og:image"]`).AttrOr("content", ""),
		doc.Find(`meta[property="og:image:secure_url"]`).AttrOr("content", ""),
		doc.Find(`meta[name="twitter:image"]`).AttrOr("content", ""),
	}
	doc.Find("img").EachWithBreak(func(i int, s *goquery.Selection) bool {
		src := s.AttrOr("src", "")
		if src == "" || strings.HasPrefix(src, "data:") {
			src = s.AttrOr("data-src", "")
		}
		if src != "" && !strings.HasPrefix(src, "data:") {
			candidates = append(candidates, src)
			return false
		}
		return true
	})

	base, _ := url.Parse(pageURL)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			return u.String(), true
		}
	}
	return "", false
}

func (p *ProductPagePicker) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	// Common headers to mimic a real browser
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	res, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code error: %d %s", res.StatusCode, res.Status)
	}
	return goquery.NewDocumentFromReader(res.Body)
}

func fetch(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return readLimited(resp.Body, limit)
}
