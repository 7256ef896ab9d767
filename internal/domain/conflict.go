package domain

import (
	"sort"

	"github.com/google/uuid"
)

type OverlapReason string

const (
	OverlapProfessional OverlapReason = "professional"
	OverlapResource     OverlapReason = "resource"
)

// Overlap is an existing appointment occupying the professional or resource during a
// candidate interval.
type Overlap struct {
	AppointmentID  uuid.UUID
	ProfessionalID string
	ResourceID     string
	Interval       Interval
	Status         Status
	ForcedOverlap  bool
	Reason         OverlapReason
}

// FindOverlaps returns the appointments in existing that occupy professionalID, or
// resourceID when non-empty, at any instant of candidate. Cancelled appointments never
// conflict; completed ones still do. An appointment holding both the professional and the
// resource is reported once, as a professional overlap. Results are ordered by start.
func FindOverlaps(existing []Appointment, professionalID, resourceID string, candidate Interval) []Overlap {
	var out []Overlap
	seen := make(map[uuid.UUID]struct{})
	for _, a := range existing {
		if !a.Status.Occupies() {
			continue
		}
		if !a.Interval().Overlaps(candidate) {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}

		var reason OverlapReason
		switch {
		case a.ProfessionalID == professionalID:
			reason = OverlapProfessional
		case resourceID != "" && a.ResourceID == resourceID:
			reason = OverlapResource
		default:
			continue
		}

		seen[a.ID] = struct{}{}
		out = append(out, Overlap{
			AppointmentID:  a.ID,
			ProfessionalID: a.ProfessionalID,
			ResourceID:     a.ResourceID,
			Interval:       a.Interval(),
			Status:         a.Status,
			ForcedOverlap:  a.ForcedOverlap,
			Reason:         reason,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out
}

// ConflictEntry holds the overlaps found for one candidate instance of a booking request.
type ConflictEntry struct {
	Index     int
	Candidate Interval
	Overlaps  []Overlap
}

// ConflictReport lists, per candidate instance index, the existing appointments that
// overlap it. Instances without overlaps have no entry.
type ConflictReport struct {
	Entries []ConflictEntry
}

func (r *ConflictReport) Add(index int, candidate Interval, overlaps []Overlap) {
	if len(overlaps) == 0 {
		return
	}
	r.Entries = append(r.Entries, ConflictEntry{Index: index, Candidate: candidate, Overlaps: overlaps})
}

func (r ConflictReport) Empty() bool {
	return len(r.Entries) == 0
}

// For returns the overlaps of instance index, or nil when it has none.
func (r ConflictReport) For(index int) []Overlap {
	for _, e := range r.Entries {
		if e.Index == index {
			return e.Overlaps
		}
	}
	return nil
}

// AppointmentIDs returns the distinct conflicting appointment ids across all instances.
func (r ConflictReport) AppointmentIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, e := range r.Entries {
		for _, o := range e.Overlaps {
			if _, ok := seen[o.AppointmentID]; ok {
				continue
			}
			seen[o.AppointmentID] = struct{}{}
			out = append(out, o.AppointmentID)
		}
	}
	return out
}
