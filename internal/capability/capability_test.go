package capability

import "testing"

func TestDirectoryResolve(t *testing.T) {
	dir, conflicts := NewDirectory([]Agent{
		{Name: "Researcher", Address: "http://localhost:8001", Capabilities: []Capability{"research"}},
		{Name: "DocumentCreator", Address: "http://localhost:8002", Capabilities: []Capability{"create_document"}},
	})
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
	agent, ok := dir.Resolve("research")
	if !ok || agent != "Researcher" {
		t.Fatalf("Resolve(research) = %q, %t", agent, ok)
	}
	addr, ok := dir.AddressOf("Researcher")
	if !ok || addr != "http://localhost:8001" {
		t.Fatalf("AddressOf(Researcher) = %q, %t", addr, ok)
	}
	if _, ok := dir.Resolve("gmail"); ok {
		t.Fatalf("expected gmail to be unknown")
	}
}

func TestDirectoryFirstClaimWins(t *testing.T) {
	dir, conflicts := NewDirectory([]Agent{
		{Name: "A", Address: "http://localhost:8001", Capabilities: []Capability{"research"}},
		{Name: "B", Address: "http://localhost:8002", Capabilities: []Capability{"research", "create_document"}},
	})
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Owner != "A" || conflicts[0].Claimant != "B" {
		t.Fatalf("unexpected conflict: %+v", conflicts[0])
	}
	agent, _ := dir.Resolve("research")
	if agent != "A" {
		t.Fatalf("expected first claimant A to keep research, got %s", agent)
	}
	agent, _ = dir.Resolve("create_document")
	if agent != "B" {
		t.Fatalf("expected B to own create_document, got %s", agent)
	}
}

func TestDirectoryCapabilitiesSorted(t *testing.T) {
	dir, _ := NewDirectory([]Agent{
		{Name: "X", Address: "http://x", Capabilities: []Capability{"zeta", "alpha", "mid"}},
	})
	caps := dir.Capabilities()
	if len(caps) != 3 {
		t.Fatalf("expected 3 capabilities, got %d", len(caps))
	}
	for i := 1; i < len(caps); i++ {
		if caps[i-1] > caps[i] {
			t.Fatalf("capabilities not sorted: %v", caps)
		}
	}
}

func TestDirectoryEmpty(t *testing.T) {
	dir, _ := NewDirectory(nil)
	if !dir.IsEmpty() {
		t.Fatalf("expected empty directory")
	}
	var nilDir *Directory
	if !nilDir.IsEmpty() {
		t.Fatalf("nil directory should report empty")
	}
	if _, ok := nilDir.Resolve("anything"); ok {
		t.Fatalf("nil directory should resolve nothing")
	}
}
