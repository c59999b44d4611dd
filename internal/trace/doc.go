// Package trace records the coordination events of a simulated MPI world.
//
// The engine stamps every event with a sequence number from a logical Clock
// while it holds the world lock, so the order of events in a Log is the
// order in which the coordination state actually changed. Wall-clock time is
// never used for ordering.
//
// Events are exported with MarshalCanonical, a deterministic JSON encoding
// (sorted keys, NFC-normalized strings, no HTML escaping) suitable for golden
// file comparison and for storage.
package trace
