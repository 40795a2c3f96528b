package multiperson

import (
	"maps"
	"slices"
	"strings"

	"animate3d/internal/jobs"
)

// Person is one detected person.
type Person struct {
	Slot  string
	Name  string
	Files []jobs.File
}

// Session is the in-memory state of one workflow.
type Session struct {
	DetectionRID  string
	Detected      bool
	Persons       []Person
	Bindings      map[string]string
	ProcessingRID string
}

// Slots returns the detected slot identifiers in order.
func (s Session) Slots() []string {
	out := make([]string, 0, len(s.Persons))
	for _, p := range s.Persons {
		out = append(out, p.Slot)
	}
	return out
}

func (s Session) clone() Session {
	out := s
	out.Persons = slices.Clone(s.Persons)
	out.Bindings = maps.Clone(s.Bindings)
	return out
}

// SlotFromName extracts the tracking suffix of an output name such as
// "person_001". ok is false when the name carries no suffix.
func SlotFromName(name string) (slot string, ok bool) {
	if len(name) < 4 || name[len(name)-4] != '_' {
		return "", false
	}
	suffix := name[len(name)-3:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return suffix, true
}

// PersonsFromLink lists the persons found in a detection result, ordered by
// slot.
func PersonsFromLink(link *jobs.DownloadLink) []Person {
	if link == nil {
		return nil
	}
	bySlot := make(map[string]Person)
	for _, group := range link.URLs {
		slot, ok := SlotFromName(group.Name)
		if !ok {
			continue
		}
		p := bySlot[slot]
		p.Slot = slot
		if p.Name == "" {
			p.Name = group.Name
		}
		p.Files = append(p.Files, group.Files...)
		bySlot[slot] = p
	}
	out := make([]Person, 0, len(bySlot))
	for _, slot := range slices.Sorted(maps.Keys(bySlot)) {
		out = append(out, bySlot[slot])
	}
	return out
}

// NormalizeSlot pads short numeric slots ("1" becomes "001").
func NormalizeSlot(slot string) string {
	slot = strings.TrimSpace(slot)
	if slot == "" || len(slot) >= 3 {
		return slot
	}
	for _, r := range slot {
		if r < '0' || r > '9' {
			return slot
		}
	}
	return strings.Repeat("0", 3-len(slot)) + slot
}
