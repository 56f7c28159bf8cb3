// Package diff computes the minimal changeset between a remote catalog
// enumeration and the locally known fingerprint map.
package diff

import "github.com/mmcdole/plexmirror/internal/domain"

// Mode selects which items a diff pass includes.
type Mode int

const (
	// AdditionsOnly includes an item iff its id is absent from the local
	// fingerprint map, regardless of fingerprint values.
	AdditionsOnly Mode = iota
	// Delta includes an item iff its local fingerprint is absent or differs
	// from the computed remote fingerprint.
	Delta
	// ForceAll includes every item unconditionally (repair sync).
	ForceAll
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case AdditionsOnly:
		return "additions-only"
	case Delta:
		return "delta"
	case ForceAll:
		return "force-all"
	default:
		return "unknown"
	}
}

// Request describes one diff pass over a section enumeration.
type Request struct {
	Items         []domain.RemoteItem // Remote enumeration, in remote order
	Local         map[string]string   // Locally known remote-id -> fingerprint
	Mode          Mode
	Kind          domain.MediaKind // Apply-method selector for emitted records
	ViewID        string
	ViewName      string
	FetchChildren bool // Emitted records request child resolution too
}

// Compute diffs a remote enumeration against the local fingerprint map. It
// returns the changeset in enumeration order and the remote fingerprint map
// for every enumerated item. Items without a remote id are skipped: remote
// enumerations may contain synthetic placeholder entries. Compute is pure
// aside from building the returned values.
func Compute(req Request) ([]domain.ChangeRecord, map[string]string) {
	changes := make([]domain.ChangeRecord, 0, len(req.Items))
	remote := make(map[string]string, len(req.Items))

	for _, item := range req.Items {
		if item.ID == "" {
			continue
		}
		fp := item.Fingerprint()
		remote[item.ID] = fp

		include := false
		switch req.Mode {
		case AdditionsOnly:
			_, known := req.Local[item.ID]
			include = !known
		case Delta:
			include = req.Local[item.ID] != fp
		case ForceAll:
			include = true
		}
		if !include {
			continue
		}

		kind := req.Kind
		if kind == domain.KindUnknown {
			kind = item.Kind
		}
		changes = append(changes, domain.ChangeRecord{
			RemoteID:      item.ID,
			Category:      kind.Category(),
			Kind:          kind,
			ViewID:        req.ViewID,
			ViewName:      req.ViewName,
			Title:         item.Title,
			FetchChildren: req.FetchChildren,
		})
	}
	return changes, remote
}
