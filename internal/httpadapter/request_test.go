package httpadapter

import (
	"errors"
	"testing"
)

func feedAll(t *testing.T, chunks ...[]byte) (*Request, error) {
	t.Helper()
	req := NewRequest()
	for _, c := range chunks {
		if err := req.Feed(c); err != nil {
			return req, err
		}
		if req.Complete() {
			break
		}
	}
	return req, nil
}

func TestCompleteInOneChunk(t *testing.T) {
	raw := []byte("POST /Plugin.Activate HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	req, err := feedAll(t, raw)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !req.Complete() {
		t.Fatalf("request not complete")
	}
	if req.Method != "POST" || req.URI != "/Plugin.Activate" {
		t.Fatalf("got method=%q uri=%q", req.Method, req.URI)
	}
}

func TestArbitraryChunkingYieldsOneComplete(t *testing.T) {
	raw := []byte("POST /Plugin.Activate HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	for split := 1; split < len(raw); split++ {
		req := NewRequest()
		completions := 0
		for i := 0; i < len(raw); i += split {
			end := i + split
			if end > len(raw) {
				end = len(raw)
			}
			wasComplete := req.Complete()
			if err := req.Feed(raw[i:end]); err != nil {
				t.Fatalf("split=%d Feed: %v", split, err)
			}
			if req.Complete() && !wasComplete {
				completions++
			}
		}
		if completions != 1 {
			t.Fatalf("split=%d: observed %d completions, want 1", split, completions)
		}
		if string(req.Body) != "hello" {
			t.Fatalf("split=%d: body=%q, want hello", split, req.Body)
		}
	}
}

func TestNoBodyCompletesAtBlankLine(t *testing.T) {
	req, err := feedAll(t, []byte("GET /Nope HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !req.Complete() {
		t.Fatalf("expected completion with no Content-Length")
	}
}

func TestMalformedRequestLine(t *testing.T) {
	req := NewRequest()
	err := req.Feed([]byte("not a request\r\n\r\n"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Feed error = %v, want ErrMalformed", err)
	}
}

func TestInvalidHeaderValueRejected(t *testing.T) {
	req := NewRequest()
	// A raw control character in a header value is not a valid field value.
	err := req.Feed([]byte("GET / HTTP/1.1\r\nX-Bad: a\x01b\r\n\r\n"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Feed error = %v, want ErrMalformed", err)
	}
}
