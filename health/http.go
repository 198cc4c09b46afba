package health

import (
	"net/http"

	"github.com/Tsukikage7/inventory-service/jsoncodec"
)

const (
	// DefaultLivenessPath 默认存活检查路径.
	DefaultLivenessPath = "/healthz"
	// DefaultReadinessPath 默认就绪检查路径.
	DefaultReadinessPath = "/readyz"
)

// LivenessHandler 返回存活检查 HTTP Handler.
func LivenessHandler(h *Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, h.Liveness(r.Context()))
	}
}

// ReadinessHandler 返回就绪检查 HTTP Handler，未就绪时返回 503.
func ReadinessHandler(h *Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, h.Readiness(r.Context()))
	}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	statusCode := http.StatusOK
	if resp.Status != StatusUp {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)
	_ = jsoncodec.Encode(w, resp)
}
