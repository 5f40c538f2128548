// Package httpadapter drives an incremental HTTP/1.x request parser from
// whatever chunks the connection coroutine hands it, and serializes
// responses. It performs no I/O of its own; see internal/conn for the
// recv/send loop that feeds it.
package httpadapter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrMalformed is returned by Feed when the byte stream does not form a
// well-formed HTTP/1.x request. It is the adapter's only error kind; the
// caller (the connection coroutine) treats any Feed error as
// per-connection-recoverable (spec.md §7, kind 2).
var ErrMalformed = errors.New("httpadapter: malformed request")

// Request accumulates an HTTP/1.x request across calls to Feed until
// Complete reports true. It is not safe for concurrent use; exactly one
// coroutine drives it.
type Request struct {
	Method string
	URI    string
	Proto  string
	Header textproto.MIMEHeader
	Body   []byte

	buf       bytes.Buffer
	headerEnd int // offset of the blank line terminating the header block, -1 until found
	complete  bool
	contentLen int
}

// NewRequest returns a fresh, empty request ready to be fed bytes.
func NewRequest() *Request {
	return &Request{headerEnd: -1, contentLen: -1}
}

// Complete reports whether the full request (headers and, if any, body)
// has been observed.
func (r *Request) Complete() bool { return r.complete }

// Feed appends chunk to the accumulated stream and advances parsing as far
// as the data allows. It returns ErrMalformed (wrapped with detail) if the
// stream can never form a valid request.
func (r *Request) Feed(chunk []byte) error {
	if r.complete {
		return nil
	}
	r.buf.Write(chunk)

	if r.headerEnd < 0 {
		idx := bytes.Index(r.buf.Bytes(), []byte("\r\n\r\n"))
		if idx < 0 {
			if r.buf.Len() > maxHeaderBytes {
				return fmt.Errorf("%w: header exceeds %d bytes", ErrMalformed, maxHeaderBytes)
			}
			return nil // headers not fully arrived yet
		}
		r.headerEnd = idx
		if err := r.parseHeadBlock(r.buf.Bytes()[:idx+2]); err != nil {
			return err
		}
	}

	bodyStart := r.headerEnd + 4
	have := r.buf.Len() - bodyStart
	if r.contentLen <= 0 {
		r.complete = true
		return nil
	}
	if have >= r.contentLen {
		r.Body = append([]byte(nil), r.buf.Bytes()[bodyStart:bodyStart+r.contentLen]...)
		r.complete = true
	}
	return nil
}

const maxHeaderBytes = 64 * 1024

// parseHeadBlock parses the request line and header fields from the bytes
// preceding the blank line.
func (r *Request) parseHeadBlock(head []byte) error {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(head)))

	line, err := reader.ReadLine()
	if err != nil {
		return fmt.Errorf("%w: request line: %v", ErrMalformed, err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed request line %q", ErrMalformed, line)
	}
	r.Method, r.URI, r.Proto = parts[0], parts[1], parts[2]
	if !strings.HasPrefix(r.Proto, "HTTP/1.") {
		return fmt.Errorf("%w: unsupported protocol %q", ErrMalformed, r.Proto)
	}

	header, err := reader.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: headers: %v", ErrMalformed, err)
	}
	r.Header = header

	for name, values := range header {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("%w: invalid header field name %q", ErrMalformed, name)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("%w: invalid header field value for %q", ErrMalformed, name)
			}
		}
	}

	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid Content-Length %q", ErrMalformed, cl)
		}
		r.contentLen = n
	} else {
		r.contentLen = 0
	}
	return nil
}
