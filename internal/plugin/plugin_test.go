package plugin

import (
	"net/textproto"
	"testing"

	"github.com/fly-zero/docker-network-plugin-demo/internal/config"
	"github.com/fly-zero/docker-network-plugin-demo/internal/httpadapter"
	"github.com/fly-zero/docker-network-plugin-demo/internal/route"
)

func newActivateRequest(header textproto.MIMEHeader) *httpadapter.Request {
	req := httpadapter.NewRequest()
	req.Method, req.URI, req.Proto = "GET", "/Plugin.Activate", "HTTP/1.1"
	req.Header = header
	return req
}

func TestActivateReturnsImplementsBody(t *testing.T) {
	tbl := route.New()
	Register(tbl, config.Default())

	fn, user, ok := tbl.Lookup("/Plugin.Activate")
	if !ok {
		t.Fatalf("route not registered")
	}

	resp := httpadapter.NewResponse()
	if ok := fn(user, newActivateRequest(textproto.MIMEHeader{}), resp); !ok {
		t.Fatalf("activate reported failure")
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != `{"Implements":["NetworkDriver"]}` {
		t.Fatalf("body = %s", resp.Body)
	}
}

func TestActivateRejectsTooOldCaller(t *testing.T) {
	cfg := config.Default()
	cfg.MinProtocolVersion = "2.0.0"
	tbl := route.New()
	Register(tbl, cfg)

	fn, user, ok := tbl.Lookup("/Plugin.Activate")
	if !ok {
		t.Fatalf("route not registered")
	}

	header := textproto.MIMEHeader{"X-Plugin-Protocol-Version": []string{"1.0.0"}}
	resp := httpadapter.NewResponse()
	if ok := fn(user, newActivateRequest(header), resp); ok {
		t.Fatalf("expected activate to reject a caller below the configured floor")
	}
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestGetCapabilitiesReturnsLocalScope(t *testing.T) {
	tbl := route.New()
	Register(tbl, config.Default())

	fn, user, ok := tbl.Lookup("/NetworkDriver.GetCapabilities")
	if !ok {
		t.Fatalf("route not registered")
	}
	resp := httpadapter.NewResponse()
	if ok := fn(user, newActivateRequest(textproto.MIMEHeader{}), resp); !ok {
		t.Fatalf("GetCapabilities reported failure")
	}
	if string(resp.Body) != `{"Scope":"local"}` {
		t.Fatalf("body = %s", resp.Body)
	}
}
