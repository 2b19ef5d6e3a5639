// Package identity resolves the stable identifier of the physical screen
package identity

import (
	"strings"
)

// Source records which input an identity was taken from
type Source string

const (
	// SourcePrimary is the host's per-slot identifier
	SourcePrimary Source = "PrimaryIdentifier"
	// SourceGroup is the host's group or display identifier
	SourceGroup Source = "GroupIdentifier"
	// SourceHardware is the host's player hardware identifier
	SourceHardware Source = "HardwareIdentifier"
	// SourceURLParam is the launch query-string override
	SourceURLParam Source = "UrlParam"
	// SourcePersisted is a value saved by an earlier successful resolution
	SourcePersisted Source = "PersistedFallback"
)

// Identity is a resolved screen identifier. It is immutable for the cycle that
// resolved it.
type Identity struct {
	ID     string
	Source Source
}

// Fields is a plain snapshot of every identity input, in no particular order
type Fields struct {
	SlotID     string
	GroupID    string
	HardwareID string
	QueryParam string
	Persisted  string
}

// Resolve applies the priority chain to f. The first non-blank field wins;
// when every field is blank it reports false instead of inventing an id.
func Resolve(f Fields) (Identity, bool) {
	chain := []struct {
		value  string
		source Source
	}{
		{f.SlotID, SourcePrimary},
		{f.GroupID, SourceGroup},
		{f.HardwareID, SourceHardware},
		{f.QueryParam, SourceURLParam},
		{f.Persisted, SourcePersisted},
	}

	for _, candidate := range chain {
		if id := strings.TrimSpace(candidate.value); id != "" {
			return Identity{ID: id, Source: candidate.source}, true
		}
	}
	return Identity{}, false
}

// FromHost reports whether the identity came from a host-provided field
func (i Identity) FromHost() bool {
	switch i.Source {
	case SourcePrimary, SourceGroup, SourceHardware, SourceURLParam:
		return true
	}
	return false
}
