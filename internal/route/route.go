// Package route implements the exact-match URI dispatch table consulted by
// a connection's coroutine once a request is fully parsed.
package route

import (
	"golang.org/x/text/unicode/norm"

	"github.com/fly-zero/docker-network-plugin-demo/internal/httpadapter"
)

//go:generate mockgen -destination=mocks/mock_table.go -package=mocks . Table

// HandlerFunc handles one fully-parsed request and fills in the response.
// It returns false on failure; the connection coroutine logs the failure
// and still sends whatever the handler wrote (spec.md leaves handler
// failure semantics to the caller).
type HandlerFunc func(user any, req *httpadapter.Request, resp *httpadapter.Response) bool

type entry struct {
	fn   HandlerFunc
	user any
}

// Table is the interface the connection coroutine looks requests up
// through; Lookup is its only hot-path method, kept narrow so tests can
// swap in a mock (see mocks/mock_table.go, generated via the go:generate
// directive above).
type Table interface {
	Lookup(uri string) (fn HandlerFunc, user any, ok bool)
}

// ExactTable is a read-only-after-setup, case-sensitive, exact-match route
// table. The zero value is not usable; construct with New.
type ExactTable struct {
	routes map[string]entry
}

// New returns an empty table ready for Register calls.
func New() *ExactTable {
	return &ExactTable{routes: make(map[string]entry)}
}

// Register binds uri to fn/user. Calling Register after Lookup has started
// being used concurrently with Run is a caller error — spec.md requires
// routes be registered before Run().
func (t *ExactTable) Register(uri string, fn HandlerFunc, user any) {
	t.routes[normalize(uri)] = entry{fn: fn, user: user}
}

// Lookup returns the handler registered for uri, if any. The URI is
// normalized to Unicode NFC first, so two byte-distinct but
// canonically-equal encodings of the same path still match.
func (t *ExactTable) Lookup(uri string) (HandlerFunc, any, bool) {
	e, ok := t.routes[normalize(uri)]
	if !ok {
		return nil, nil, false
	}
	return e.fn, e.user, true
}

func normalize(uri string) string {
	if norm.NFC.IsNormalString(uri) {
		return uri
	}
	return norm.NFC.String(uri)
}
