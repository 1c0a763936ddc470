package health

import (
	"context"
	"net/http"
	"time"

	"strategyvault/internal/httputil"
)

type status struct {
	Status string `json:"status"`
}

// Handler answers liveness and readiness probes. Readiness pings the backing
// store through the supplied function.
type Handler struct {
	ping func(ctx context.Context) error
}

func NewHandler(ping func(ctx context.Context) error) *Handler {
	return &Handler{ping: ping}
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, status{Status: "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, status{Status: "store unreachable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, status{Status: "ok"})
}
