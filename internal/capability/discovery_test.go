package capability

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func metadataServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/capabilities" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverHappyPath(t *testing.T) {
	srv := metadataServer(t, `{"agents":[{"agent_name":"Researcher","capabilities":["research"]}]}`, http.StatusOK)

	d := NewDiscoverer([]string{srv.URL}, nil, time.Second, discardLogger())
	dir := d.Discover(context.Background())

	agent, ok := dir.Resolve("research")
	if !ok || agent != "Researcher" {
		t.Fatalf("Resolve(research) = %q, %t", agent, ok)
	}
	addr, _ := dir.AddressOf("Researcher")
	if addr != srv.URL {
		t.Fatalf("expected address %s, got %s", srv.URL, addr)
	}
}

func TestDiscoverFallbackOnUnreachable(t *testing.T) {
	// 127.0.0.1:1 refuses connections; fallback keyed by port takes over.
	fallback := map[string]Metadata{
		"1": {AgentName: "Gmail", Capabilities: []string{"gmail"}},
	}
	d := NewDiscoverer([]string{"http://127.0.0.1:1"}, fallback, 200*time.Millisecond, discardLogger())
	dir := d.Discover(context.Background())

	agent, ok := dir.Resolve("gmail")
	if !ok || agent != "Gmail" {
		t.Fatalf("expected fallback agent Gmail, got %q, %t", agent, ok)
	}
}

func TestDiscoverFallbackOnInvalidMetadata(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"agents":[]}`,
		`{"agents":[{"agent_name":"","capabilities":["x"]}]}`,
		`{"agents":[{"agent_name":"NoCaps","capabilities":[]}]}`,
		`{"agents":[{"agent_name":"Blank","capabilities":[" "]}]}`,
	}
	for _, body := range cases {
		srv := metadataServer(t, body, http.StatusOK)
		d := NewDiscoverer([]string{srv.URL}, nil, time.Second, discardLogger())
		dir := d.Discover(context.Background())
		if !dir.IsEmpty() {
			t.Fatalf("body %q: expected skipped endpoint with no fallback, got %d capabilities", body, dir.Len())
		}
	}
}

func TestDiscoverErrorStatusUsesFallback(t *testing.T) {
	srv := metadataServer(t, `oops`, http.StatusInternalServerError)

	// Port of an httptest server is dynamic; no fallback entry matches,
	// so the endpoint is skipped entirely.
	d := NewDiscoverer([]string{srv.URL}, map[string]Metadata{}, time.Second, discardLogger())
	dir := d.Discover(context.Background())
	if !dir.IsEmpty() {
		t.Fatalf("expected empty directory, got %d", dir.Len())
	}
}

func TestDiscoverNoEndpoints(t *testing.T) {
	d := NewDiscoverer(nil, nil, time.Second, discardLogger())
	dir := d.Discover(context.Background())
	if !dir.IsEmpty() {
		t.Fatalf("expected empty directory with no endpoints")
	}
}

func TestDiscoverConflictKeepsEndpointOrder(t *testing.T) {
	first := metadataServer(t, `{"agents":[{"agent_name":"First","capabilities":["research"]}]}`, http.StatusOK)
	second := metadataServer(t, `{"agents":[{"agent_name":"Second","capabilities":["research"]}]}`, http.StatusOK)

	d := NewDiscoverer([]string{first.URL, second.URL}, nil, time.Second, discardLogger())
	dir := d.Discover(context.Background())

	agent, _ := dir.Resolve("research")
	if agent != "First" {
		t.Fatalf("expected First to keep research, got %s", agent)
	}
}
