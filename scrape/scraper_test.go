package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>  Refund   Policy </title>
  <style>body { color: red; }</style>
  <script>var tracking = "should not appear";</script>
</head>
<body>
  <h1>Refunds</h1>
  <p>Refunds are processed within five business days of receiving the returned item.</p>
  <noscript>Enable JavaScript</noscript>
  <ul><li>Keep your receipt</li><li>Use original packaging</li></ul>
</body>
</html>`

func TestScrape(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s, err := New()
	require.NoError(t, err)

	page, err := s.Scrape(context.Background(), srv.URL+"/refunds")
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "Refund Policy", page.Title)
	assert.Equal(t, "Refund Policy", page.DisplayName())
	assert.Contains(t, page.Text, "Refunds are processed within five business days")
	assert.Contains(t, page.Text, "Keep your receipt\nUse original packaging")
	assert.NotContains(t, page.Text, "tracking")
	assert.NotContains(t, page.Text, "Enable JavaScript")
	assert.NotContains(t, page.Text, "color")
}

func TestScrape_TooLittleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Hi</p></body></html>"))
	}))
	defer srv.Close()

	s, err := New()
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLittleText)
}

func TestScrape_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, err := New()
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestScrape_InvalidURL(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	for _, u := range []string{"", "ftp://example.com/file", "/relative/path", "http://"} {
		_, err := s.Scrape(context.Background(), u)
		assert.ErrorIs(t, err, ErrInvalidURL, u)
	}
}

func TestPage_DisplayNameFallsBackToURL(t *testing.T) {
	p := &Page{URL: "https://example.com/a"}
	assert.Equal(t, "https://example.com/a", p.DisplayName())
}
