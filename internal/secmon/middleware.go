package secmon

import (
	"net/http"

	"panelmerge/pkg/platform/httputil"
)

// Middleware wires the monitor's pre- and post-hooks into the request
// lifecycle. The pre-hook may short-circuit with a fixed rejection; the
// post-hook only observes, the response always passes through unmodified.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := m.now()

		if rejection := m.Precheck(r); rejection != nil {
			httputil.WriteMessage(w, rejection.Status, rejection.Message)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.Postcheck(r, rec.status, started)
	})
}

// statusRecorder captures the response status for the post-hook without
// interfering with the handler's writes.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(status int) {
	if !rec.wroteHeader {
		rec.status = status
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.wroteHeader = true
	}
	return rec.ResponseWriter.Write(b)
}

// Flush lets streaming handlers keep working through the recorder.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
