package utils

import (
	"context"
	"net/http"
	"time"
)

const shortLinkUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ResolveShortenedURL follows redirects to find the final URL. On
// failure the input is returned together with the error.
func ResolveShortenedURL(ctx context.Context, url string) (string, error) {
	client := &http.Client{Timeout: 15 * time.Second}

	resp, err := doWithUA(ctx, client, http.MethodHead, url)
	if err != nil || resp.StatusCode != http.StatusOK {
		// Some shops reject HEAD.
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = doWithUA(ctx, client, http.MethodGet, url)
		if err != nil {
			return url, err
		}
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}

func doWithUA(ctx context.Context, client *http.Client, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", shortLinkUserAgent)
	return client.Do(req)
}
