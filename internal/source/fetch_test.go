package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sgdqbot/pkg/logx"
)

func TestFetchSendsUserAgent(t *testing.T) {
	t.Parallel()

	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<table></table>"))
	}))
	defer srv.Close()

	f := New(Config{URL: srv.URL, UserAgent: "TestAgent/1.0", Timeout: time.Second}, srv.Client(), logx.Nop())
	body, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "<table></table>" {
		t.Fatalf("body = %q", body)
	}
	if gotUA := <-uaCh; gotUA != "TestAgent/1.0" {
		t.Fatalf("User-Agent = %q, want TestAgent/1.0", gotUA)
	}
}

func TestFetchStatusErrors(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNoContent} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		f := New(Config{URL: srv.URL}, srv.Client(), logx.Nop())
		_, err := f.Fetch(context.Background())
		srv.Close()

		var se *StatusError
		if !errors.As(err, &se) || se.Code != code {
			t.Fatalf("Fetch() error = %v, want *StatusError with code %d", err, code)
		}
		if !errors.Is(err, ErrStatus) {
			t.Fatalf("errors.Is(%v, ErrStatus) = false", err)
		}
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(Config{URL: srv.URL, Timeout: 20 * time.Millisecond}, srv.Client(), logx.Nop())
	if _, err := f.Fetch(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch() error = %v, want deadline exceeded", err)
	}
}

func TestApplySwitchesURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	f := New(Config{URL: srv.URL + "/old"}, srv.Client(), logx.Nop())
	f.Apply(Config{URL: srv.URL + "/new"})
	body, err := f.Fetch(context.Background())
	if err != nil || string(body) != "/new" {
		t.Fatalf("Fetch() = %q, %v, want /new", body, err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := New(Config{URL: url}, nil, logx.Nop())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("Fetch() from closed server error = nil")
	}
}
