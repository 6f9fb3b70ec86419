package metrics

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type hijackRecorder struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(bufio.NewReader(h.conn), bufio.NewWriter(h.conn)), nil
}

func TestResponseWriter_HijackRecordsSwitchingProtocols(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	wrap := &responseWriter{
		ResponseWriter: &hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server},
		status:         http.StatusOK,
	}

	conn, _, err := wrap.Hijack()
	if err != nil {
		t.Fatalf("Hijack: %v", err)
	}
	defer conn.Close()
	if conn != server {
		t.Error("Hijack returned a different connection")
	}
	if wrap.status != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want %d", wrap.status, http.StatusSwitchingProtocols)
	}
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	wrap := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := wrap.Hijack(); err == nil {
		t.Fatal("expected an error from a writer that cannot hijack")
	}
	if wrap.status != http.StatusOK {
		t.Errorf("status changed to %d on a failed hijack", wrap.status)
	}
}

func TestRequestMiddleware_HijackedRequestIsNotAnError(t *testing.T) {
	m := New()
	server, client := net.Pipe()
	defer client.Close()

	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("Hijack through middleware: %v", err)
			return
		}
		conn.Close()
	}))
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server}
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	out := scrape(t, m, nil)
	for _, want := range []string{"bridge_requests_total 1", "bridge_errors_total 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}
