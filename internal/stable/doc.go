// Package stable implements the durable collections that back Darely state.
//
// All persistent data lives in a single page-addressable backing store. A
// Manager partitions that store into numbered regions, and the typed
// collections (Map, Vector) each own one region. Collections attach to
// whatever bytes their region already holds, so a process restart or upgrade
// recovers prior contents without any explicit migration step.
//
// The package separates three concerns:
//
//   - Memory: raw page-granular reads, writes, and growth
//   - Manager: stable region ids mapped onto disjoint byte ranges
//   - Map/Vector: typed, bound-checked encodings of domain records
//
// Collections never share regions and never reclaim space within a process
// lifetime; compaction is a deliberate non-feature.
package stable
