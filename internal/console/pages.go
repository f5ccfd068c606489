package console

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/shaadicards/console/internal/platform/httpx"
	"github.com/shaadicards/console/internal/session"
)

// Page returns a handler that relays one platform API resource to the
// console page that renders it. The transport attaches the right actor's
// token and applies auth side effects; whatever navigation it recorded wins
// over the response body.
func (h *Handler) Page(upstreamPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := session.StateFromContext(r.Context())
		if st == nil {
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}

		res, err := h.api.Forward(r.Context(), http.MethodGet, upstreamPath, nil)
		if res != nil {
			defer res.Body.Close()
		}

		if target := st.PendingRedirect(); target != "" {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		if err != nil {
			if h.logger != nil {
				h.logger.Error("upstream request failed", slog.String("path", upstreamPath), slog.Any("error", err))
			}
			httpx.RespondError(w, httpx.ErrUpstream)
			return
		}

		contentType := res.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(res.StatusCode)
		_, _ = io.Copy(w, res.Body)
	}
}
