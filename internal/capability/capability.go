package capability

import "sort"

// Capability is an opaque, stable token identifying a unit of delegable
// work (e.g. "research"). Case-sensitive; equality is the only operation.
type Capability string

// AgentName is the stable name of a worker service instance (e.g.
// "Researcher"), distinct from its network address.
type AgentName string

// Agent is one discovered worker: its identity, the address it was
// discovered at, and the capabilities it claims.
type Agent struct {
	Name         AgentName
	Address      string
	Capabilities []Capability
}

// Directory maps capabilities to the agents providing them. It is built
// once by discovery and immutable afterwards, so it is safe for
// concurrent reads across in-flight requests.
type Directory struct {
	byCapability map[Capability]AgentName
	addresses    map[AgentName]string
}

// NewDirectory builds a directory from discovered agents. Agents are
// merged in order; when two agents claim the same capability the first
// wins and the conflict is reported to the caller for logging.
func NewDirectory(agents []Agent) (*Directory, []Conflict) {
	d := &Directory{
		byCapability: make(map[Capability]AgentName),
		addresses:    make(map[AgentName]string),
	}
	var conflicts []Conflict
	for _, a := range agents {
		d.addresses[a.Name] = a.Address
		for _, c := range a.Capabilities {
			if owner, ok := d.byCapability[c]; ok {
				conflicts = append(conflicts, Conflict{Capability: c, Owner: owner, Claimant: a.Name})
				continue
			}
			d.byCapability[c] = a.Name
		}
	}
	return d, conflicts
}

// Conflict records a duplicate capability claim. Duplicate ownership is
// a configuration error, not a crash condition; the first claimant in
// endpoint order keeps the capability.
type Conflict struct {
	Capability Capability
	Owner      AgentName
	Claimant   AgentName
}

// Resolve returns the agent providing a capability.
func (d *Directory) Resolve(c Capability) (AgentName, bool) {
	if d == nil {
		return "", false
	}
	a, ok := d.byCapability[c]
	return a, ok
}

// AddressOf returns the network address an agent was discovered at.
func (d *Directory) AddressOf(a AgentName) (string, bool) {
	if d == nil {
		return "", false
	}
	addr, ok := d.addresses[a]
	return addr, ok
}

// Capabilities returns the discovered capability tokens in sorted order.
func (d *Directory) Capabilities() []Capability {
	if d == nil {
		return nil
	}
	out := make([]Capability, 0, len(d.byCapability))
	for c := range d.byCapability {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered capabilities.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byCapability)
}

// IsEmpty reports whether no capabilities were discovered. An empty
// directory means "no delegation possible", not a fatal condition.
func (d *Directory) IsEmpty() bool { return d.Len() == 0 }
