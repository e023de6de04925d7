package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const litePage = `<html><body><table>
<tr><td>1.&nbsp;</td><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc" class='result-link'>The Go Programming Language</a></td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>Go is an open source   programming language.</td></tr>
<tr><td>2.&nbsp;</td><td><a rel="nofollow" href="https://en.wikipedia.org/wiki/Go_(programming_language)" class='result-link'>Go (programming language) - Wikipedia</a></td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>Go is a statically typed language designed at <b>Google</b>.</td></tr>
</table></body></html>`

func TestSearchParsesLitePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("q") != "golang" {
			t.Errorf("q=%q err=%v", r.PostForm.Get("q"), err)
		}
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()), WithInterval(0))
	hits, err := c.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits=%+v", hits)
	}
	if hits[0].URL != "https://go.dev/" || hits[0].Title != "The Go Programming Language" {
		t.Fatalf("hit0=%+v", hits[0])
	}
	if hits[0].Snippet != "Go is an open source programming language." {
		t.Fatalf("snippet0=%q", hits[0].Snippet)
	}
	if hits[1].Snippet != "Go is a statically typed language designed at Google." {
		t.Fatalf("snippet1=%q", hits[1].Snippet)
	}
}

func TestSearchEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>No results.</body></html>"))
	}))
	defer srv.Close()
	c := New(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()), WithInterval(0))
	hits, err := c.Search(context.Background(), "zzzz")
	if err != nil || len(hits) != 0 {
		t.Fatalf("hits=%v err=%v", hits, err)
	}
}

func TestSearchRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()
	c := New(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()), WithInterval(0), WithBackoff(time.Millisecond))
	hits, err := c.Search(context.Background(), "golang")
	if err != nil || len(hits) != 2 {
		t.Fatalf("hits=%v err=%v", hits, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestSearchGivesUpOnPersistent429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := New(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()), WithInterval(0), WithBackoff(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Search(ctx, "golang")
	if err == nil || !strings.Contains(err.Error(), "duckduckgo http 429") {
		t.Fatalf("err=%v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("search ran until the deadline")
	}
	if calls.Load() != maxAttempts {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()), WithInterval(0))
	if _, err := c.Search(context.Background(), "golang"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Search(context.Background(), "  "); err == nil {
		t.Fatal("expected empty-query error")
	}
}

func TestRateLimitSpacesQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()
	c := New(WithEndpoint(srv.URL), WithHTTPClient(srv.Client()), WithInterval(50*time.Millisecond))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), "golang"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("three queries took %v, want >= 100ms", elapsed)
	}
}
