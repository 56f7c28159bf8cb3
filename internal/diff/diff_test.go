package diff

import (
	"testing"

	"github.com/mmcdole/plexmirror/internal/domain"
)

func remoteItems() []domain.RemoteItem {
	return []domain.RemoteItem{
		{ID: "101", Kind: domain.KindMovie, Title: "Stalker", UpdatedAt: 1000},
		{ID: "102", Kind: domain.KindMovie, Title: "Solaris", UpdatedAt: 2000},
		{ID: "103", Kind: domain.KindMovie, Title: "Mirror", UpdatedAt: 3000},
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	a := domain.Fingerprint("42", 12345)
	b := domain.Fingerprint("42", 12345)
	if a != b {
		t.Fatalf("Fingerprint not deterministic: %q vs %q", a, b)
	}
	if a == domain.Fingerprint("42", 12346) {
		t.Error("Fingerprint ignored timestamp change")
	}
	if a == domain.Fingerprint("43", 12345) {
		t.Error("Fingerprint ignored id change")
	}
}

func TestComputeAdditionsOnly(t *testing.T) {
	// Local fingerprints deliberately stale: additions-only must ignore them.
	local := map[string]string{
		"101": "stale-value",
		"103": domain.Fingerprint("103", 3000),
	}
	changes, remote := Compute(Request{
		Items:  remoteItems(),
		Local:  local,
		Mode:   AdditionsOnly,
		ViewID: "1",
	})

	if len(changes) != 1 || changes[0].RemoteID != "102" {
		t.Fatalf("expected exactly R\\L = {102}, got %+v", changes)
	}
	if len(remote) != 3 {
		t.Errorf("remote fingerprint map should cover all 3 items, got %d", len(remote))
	}
}

func TestComputeDelta(t *testing.T) {
	items := remoteItems()
	local := map[string]string{
		"101": domain.Fingerprint("101", 1000), // unchanged
		"102": domain.Fingerprint("102", 999),  // changed remotely
		// 103 absent locally
	}
	changes, _ := Compute(Request{Items: items, Local: local, Mode: Delta})

	if len(changes) != 2 {
		t.Fatalf("expected 2 change records, got %d: %+v", len(changes), changes)
	}
	// Changeset preserves enumeration order.
	if changes[0].RemoteID != "102" || changes[1].RemoteID != "103" {
		t.Errorf("changeset out of enumeration order: %+v", changes)
	}
}

func TestComputeDeltaIdempotent(t *testing.T) {
	items := remoteItems()
	_, remote := Compute(Request{Items: items, Mode: Delta})

	// A second pass with the prior run's remote map as local state must be empty.
	changes, _ := Compute(Request{Items: items, Local: remote, Mode: Delta})
	if len(changes) != 0 {
		t.Fatalf("delta over unchanged enumeration not empty: %+v", changes)
	}
}

func TestComputeForceAll(t *testing.T) {
	items := remoteItems()
	_, remote := Compute(Request{Items: items, Mode: Delta})
	changes, _ := Compute(Request{Items: items, Local: remote, Mode: ForceAll})
	if len(changes) != len(items) {
		t.Fatalf("force-all must include every item, got %d of %d", len(changes), len(items))
	}
}

func TestComputeSkipsPlaceholderEntries(t *testing.T) {
	items := append(remoteItems(), domain.RemoteItem{Title: "All episodes"})
	changes, remote := Compute(Request{Items: items, Mode: ForceAll})
	if len(changes) != 3 || len(remote) != 3 {
		t.Fatalf("placeholder without id must be skipped: changes=%d remote=%d", len(changes), len(remote))
	}
}

func TestComputeKindSelector(t *testing.T) {
	items := []domain.RemoteItem{{ID: "7", Kind: domain.KindEpisode}}

	changes, _ := Compute(Request{Items: items, Mode: ForceAll, Kind: domain.KindSeason})
	if changes[0].Kind != domain.KindSeason {
		t.Errorf("explicit request kind ignored: %v", changes[0].Kind)
	}

	changes, _ = Compute(Request{Items: items, Mode: ForceAll})
	if changes[0].Kind != domain.KindEpisode {
		t.Errorf("item kind not used as fallback: %v", changes[0].Kind)
	}
	if changes[0].Category != domain.CategoryShows {
		t.Errorf("category not derived from kind: %v", changes[0].Category)
	}
}
