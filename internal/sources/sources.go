// Package sources turns portal pages into canonical snapshots and
// snapshot pairs into notifications.
package sources

import (
	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/snapshot"
)

// Capture is a freshly fetched snapshot in canonical form.
type Capture struct {
	Canonical string
	Hash      string
}

func newCapture(v any) (Capture, error) {
	canonical, err := snapshot.Normalize(v)
	if err != nil {
		return Capture{}, err
	}
	return Capture{Canonical: canonical, Hash: snapshot.Hash(canonical)}, nil
}

// Report is the outcome of comparing a capture with the stored baseline.
// Baseline is what should be stored next, it can differ from the capture.
type Report struct {
	Baseline Capture
	// Message is empty when nothing is worth notifying.
	Message string
	Recent  []changes.RecentEvent
}
