//go:build linux || darwin || freebsd || netbsd || openbsd

package conn

import (
	"testing"

	"go.uber.org/mock/gomock"
	"golang.org/x/sys/unix"

	"github.com/fly-zero/docker-network-plugin-demo/internal/httpadapter"
	"github.com/fly-zero/docker-network-plugin-demo/internal/logging"
	"github.com/fly-zero/docker-network-plugin-demo/internal/route/mocks"
)

// TestRunConsultsTableExactlyOnceWithParsedURI uses the generated Table mock
// to assert the coroutine body looks a request's URI up exactly once,
// rather than relying on ExactTable's own (already separately tested)
// matching behavior.
func TestRunConsultsTableExactlyOnceWithParsedURI(t *testing.T) {
	serverFD, clientFD := socketPair(t)

	ctrl := gomock.NewController(t)
	tbl := mocks.NewMockTable(ctrl)
	tbl.EXPECT().
		Lookup("/Plugin.Activate").
		Times(1).
		Return(func(user any, req *httpadapter.Request, resp *httpadapter.Response) bool {
			resp.Body = []byte("ok")
			return true
		}, nil, true)

	reaper := &recordingReaper{}
	c, err := New(serverFD, reaper, tbl, 4096, logging.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Start()

	if _, err := unix.Write(clientFD, []byte("GET /Plugin.Activate HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	pump(t, c, 32)

	if c.Status() != StatusClosing {
		t.Fatalf("status = %v, want CLOSING", c.Status())
	}

	out := make([]byte, 4096)
	n, err := unix.Read(clientFD, out)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	want := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	if string(out[:n]) != want {
		t.Fatalf("response = %q, want %q", string(out[:n]), want)
	}
}
