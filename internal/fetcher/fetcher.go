// Package fetcher retrieves raw product-page HTML directly, through public
// relay proxies, or through a headless browser.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoContent means every attempt failed; callers fall back.
	ErrNoContent = errors.New("no usable content")
	// ErrShortBody rejects proxy error pages mistaken for content.
	ErrShortBody = errors.New("response body too short")
	ErrBadStatus = errors.New("unexpected status")
)

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, rawURL string) (string, error)

func (f FetchFunc) Fetch(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

type AttemptError struct {
	Target string
	Err    error
}

// FetchError lists every failed attempt for one URL. It unwraps to
// ErrNoContent.
type FetchError struct {
	URL      string
	Attempts []AttemptError
}

func (e *FetchError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("fetch %s: %v", e.URL, ErrNoContent)
	}
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %v", a.Target, a.Err))
	}
	return fmt.Sprintf("fetch %s: %v after %d attempts (%s)", e.URL, ErrNoContent, len(e.Attempts), strings.Join(reasons, "; "))
}

func (e *FetchError) Unwrap() error {
	return ErrNoContent
}

// Chain tries fetchers in order and returns the first success.
type Chain []Fetcher

func (c Chain) Fetch(ctx context.Context, rawURL string) (string, error) {
	combined := &FetchError{URL: rawURL}

	for i, f := range c {
		html, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return html, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var fe *FetchError
		if errors.As(err, &fe) {
			combined.Attempts = append(combined.Attempts, fe.Attempts...)
			continue
		}
		combined.Attempts = append(combined.Attempts, AttemptError{Target: fmt.Sprintf("fetcher %d", i+1), Err: err})
	}

	return "", combined
}

func acceptBody(body string, minLength int) error {
	if len(strings.TrimSpace(body)) < minLength {
		return fmt.Errorf("%w: %d bytes", ErrShortBody, len(strings.TrimSpace(body)))
	}
	return nil
}
