package httpadapter

import (
	"fmt"
	"net/http"
)

// Response is the minimal object a route handler fills in: a status code
// and a byte body. There is deliberately no header map — the wire format is
// fixed (see Serialize) and the spec's response grammar has no room for
// handler-supplied headers.
type Response struct {
	Status int
	Body   []byte
}

// NewResponse returns a Response defaulted to 200 with an empty body, the
// same default the spec's unknown-URI fallback produces.
func NewResponse() *Response {
	return &Response{Status: http.StatusOK}
}

// Serialize renders resp as exactly:
//
//	HTTP/1.1 <status> <reason>\r\nContent-Length: <len>\r\n\r\n<body>
//
// matching spec.md §6 byte-for-byte.
func Serialize(resp *Response) []byte {
	reason := http.StatusText(resp.Status)
	if reason == "" {
		reason = "Unknown"
	}
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\n\r\n", resp.Status, reason, len(resp.Body))
	out := make([]byte, 0, len(head)+len(resp.Body))
	out = append(out, head...)
	out = append(out, resp.Body...)
	return out
}
