package model

import (
	"time"

	"github.com/google/uuid"
)

// Run is one execution instance of a subject. It stands in for the external
// run registry: it resolves a run to its subject, carries the default logical
// timestamp for submissions that omit one, and lists the dependency packages
// used for chart annotation.
type Run struct {
	ID        uuid.UUID        `json:"id"`
	SubjectID uuid.UUID        `json:"test_id"`
	BuildID   string           `json:"build_id,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Packages  []PackageVersion `json:"packages,omitempty"`
	Ignored   bool             `json:"ignored,omitempty"`
}

// PackageVersion identifies one dependency package installed on the system
// under test during a run.
type PackageVersion struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Date       string `json:"date,omitempty"`
	RevisionID string `json:"revision_id,omitempty"`
	BuildID    string `json:"build_id,omitempty"`
}

// RunsDetails aggregates per-run context needed by chart assembly: runs to
// exclude from series and the package set of every remaining run.
type RunsDetails struct {
	Ignored  []uuid.UUID
	Packages map[uuid.UUID][]PackageVersion
}

// IgnoredSet returns the ignored run ids as a lookup set.
func (d RunsDetails) IgnoredSet() map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(d.Ignored))
	for _, id := range d.Ignored {
		set[id] = true
	}
	return set
}

// GraphView is a saved chart selection for a subject: a named, free-form
// blob the frontend uses to restore a curated set of graphs.
type GraphView struct {
	SubjectID   uuid.UUID `json:"test_id"`
	ViewID      uuid.UUID `json:"view_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Graphs      []byte    `json:"graphs,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
