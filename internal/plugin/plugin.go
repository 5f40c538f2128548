// Package plugin holds the reference route handlers this server exists to
// serve: the libnetwork plugin activation handshake and a capabilities probe, a
// feature the original distillation's scope left out but spec.md's overview
// names as the motivating workload (spec.md §1, §9 handshake scenario).
package plugin

import (
	"encoding/json"
	"net/http"

	"github.com/fly-zero/docker-network-plugin-demo/internal/config"
	"github.com/fly-zero/docker-network-plugin-demo/internal/httpadapter"
	"github.com/fly-zero/docker-network-plugin-demo/internal/route"
)

// ActivateResponse is the fixed body libnetwork expects from a successful
// /Plugin.Activate handshake.
type ActivateResponse struct {
	Implements []string `json:"Implements"`
}

// Register binds the plugin's handful of fixed routes into tbl. cfg is
// consulted to gate activation on the caller's advertised protocol version.
func Register(tbl *route.ExactTable, cfg config.Config) {
	tbl.Register("/Plugin.Activate", activate, cfg)
	tbl.Register("/NetworkDriver.GetCapabilities", getCapabilities, nil)
}

func activate(user any, req *httpadapter.Request, resp *httpadapter.Response) bool {
	cfg, _ := user.(config.Config)
	if candidate := req.Header.Get("X-Plugin-Protocol-Version"); candidate != "" {
		ok, err := cfg.MeetsProtocolVersion(candidate)
		if err != nil || !ok {
			resp.Status = http.StatusBadRequest
			return false
		}
	}

	body, err := json.Marshal(ActivateResponse{Implements: []string{"NetworkDriver"}})
	if err != nil {
		resp.Status = http.StatusInternalServerError
		return false
	}
	resp.Status = http.StatusOK
	resp.Body = body
	return true
}

func getCapabilities(user any, req *httpadapter.Request, resp *httpadapter.Response) bool {
	resp.Status = http.StatusOK
	resp.Body = []byte(`{"Scope":"local"}`)
	return true
}
