// Package organelle holds the shared vocabulary of cell components: the
// registry entry type and the reserved-name set. The reserved-name check
// lives here, in exactly one place, so the registry seeding logic and the
// replication filter cannot drift apart.
package organelle

import "protocell/pkg/domain"

// Reserved registry names. Both are seeded at registry configuration time and
// are never part of a replication copy pass.
const (
	// NameParent is the fixed entry pointing at the address that declared the
	// registry. It is the sole holder of registration authority.
	NameParent = "Parent"
	// NameNucleus is the registry's self-entry.
	NameNucleus = "Nucleus"
)

// Reserved reports whether name is one of the fixed registry entries.
// Matching is exact and case-sensitive.
func Reserved(name string) bool {
	return name == NameParent || name == NameNucleus
}

// Organelle is one named, addressable entry in a registry. Replicable entries
// are cloned during replication; the rest carry their address forward
// unchanged.
type Organelle struct {
	Name       string
	Address    domain.Address
	Replicable bool
}

// Table is an insertion-ordered list of registry entries.
type Table []Organelle

// WithoutReserved returns the entries that take part in a replication copy
// pass, preserving relative order. The reserved entries identify the source
// cell and must never leak into a daughter registry's seed table.
func (t Table) WithoutReserved() Table {
	filtered := make(Table, 0, len(t))
	for _, entry := range t {
		if Reserved(entry.Name) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

// Names returns the entry names in table order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, entry := range t {
		names[i] = entry.Name
	}
	return names
}
