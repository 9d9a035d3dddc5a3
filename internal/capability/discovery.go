package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Metadata is what a worker service advertises about itself.
type Metadata struct {
	AgentName    string   `json:"agent_name"`
	Capabilities []string `json:"capabilities"`
}

// metadataResponse is the body of GET /capabilities on a worker service.
type metadataResponse struct {
	Agents []Metadata `json:"agents"`
}

// Discoverer probes configured worker endpoints and builds the
// capability directory. Discovery is best-effort at startup: a probe
// gets one attempt with a bounded timeout, then the static fallback
// table keyed by port takes over for that endpoint.
type Discoverer struct {
	Endpoints []string
	Fallback  map[string]Metadata // keyed by port
	Timeout   time.Duration
	Logger    *log.Logger

	client *http.Client
}

// NewDiscoverer creates a discoverer over the given endpoints.
func NewDiscoverer(endpoints []string, fallback map[string]Metadata, timeout time.Duration, logger *log.Logger) *Discoverer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[DISCOVERY] ", log.LstdFlags)
	}
	return &Discoverer{
		Endpoints: endpoints,
		Fallback:  fallback,
		Timeout:   timeout,
		Logger:    logger,
		client:    &http.Client{Timeout: timeout},
	}
}

// Discover queries all endpoints concurrently and merges the results
// into one directory. Endpoint order decides conflicts (first wins,
// logged as a warning). No endpoints configured yields an empty
// directory, not an error.
func (d *Discoverer) Discover(ctx context.Context) *Directory {
	if len(d.Endpoints) == 0 {
		d.Logger.Printf("no endpoints configured; directory is empty")
		dir, _ := NewDirectory(nil)
		return dir
	}

	// Probes are independent and idempotent, so they run in parallel;
	// results keep endpoint positions so the merge stays deterministic.
	results := make([]*Agent, len(d.Endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range d.Endpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			results[i] = d.probe(ctx, endpoint)
		}(i, endpoint)
	}
	wg.Wait()

	var agents []Agent
	for _, a := range results {
		if a != nil {
			agents = append(agents, *a)
		}
	}

	dir, conflicts := NewDirectory(agents)
	for _, c := range conflicts {
		d.Logger.Printf("warning: capability %q claimed by both %s and %s; keeping %s",
			c.Capability, c.Owner, c.Claimant, c.Owner)
	}
	d.Logger.Printf("discovery complete: %d agents, %d capabilities", len(agents), dir.Len())
	return dir
}

// probe queries one endpoint's metadata; on any failure it falls back
// to the static table. Returns nil when neither source yields a valid
// agent (the endpoint is skipped, discovery continues).
func (d *Discoverer) probe(ctx context.Context, endpoint string) *Agent {
	base := strings.TrimRight(endpoint, "/")
	meta, err := d.fetchMetadata(ctx, base)
	if err != nil {
		d.Logger.Printf("endpoint %s unreachable or invalid (%v); trying fallback table", base, err)
		meta = d.fallbackFor(base)
		if meta == nil {
			d.Logger.Printf("no fallback entry for %s; skipping", base)
			return nil
		}
	}
	caps := make([]Capability, 0, len(meta.Capabilities))
	for _, c := range meta.Capabilities {
		caps = append(caps, Capability(c))
	}
	d.Logger.Printf("discovered agent %s at %s with capabilities %v", meta.AgentName, base, meta.Capabilities)
	return &Agent{Name: AgentName(meta.AgentName), Address: base, Capabilities: caps}
}

func (d *Discoverer) fetchMetadata(ctx context.Context, base string) (*Metadata, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base+"/capabilities", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var body metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed metadata: %w", err)
	}
	for _, m := range body.Agents {
		if err := validateMetadata(m); err != nil {
			d.Logger.Printf("endpoint %s advertised invalid entry (%v); skipping entry", base, err)
			continue
		}
		return &m, nil
	}
	return nil, fmt.Errorf("no valid entries in metadata")
}

func validateMetadata(m Metadata) error {
	if strings.TrimSpace(m.AgentName) == "" {
		return fmt.Errorf("empty agent_name")
	}
	if len(m.Capabilities) == 0 {
		return fmt.Errorf("empty capabilities")
	}
	for _, c := range m.Capabilities {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("blank capability token")
		}
	}
	return nil
}

// fallbackFor resolves the static table entry for an endpoint by port.
// An entry without capabilities is valid: it names a participant that
// plans but never receives dispatches.
func (d *Discoverer) fallbackFor(base string) *Metadata {
	u, err := url.Parse(base)
	if err != nil {
		return nil
	}
	entry, ok := d.Fallback[u.Port()]
	if !ok || strings.TrimSpace(entry.AgentName) == "" {
		return nil
	}
	d.Logger.Printf("using port-based fallback for %s (port %s): agent=%s capabilities=%v",
		base, u.Port(), entry.AgentName, entry.Capabilities)
	return &entry
}
