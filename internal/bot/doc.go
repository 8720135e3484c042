// Package bot runs the update loop: it pulls batches from a transport,
// drops replayed update ids, turns messages into commands and fans each
// command out to every registered module.
//
// # Delivery
//
// Updates are processed at most once per process and in non-decreasing id
// order. The high-water mark survives restarts through the snapshot, so a
// restart re-delivers at most the updates that arrived after the last save;
// modules are expected to be idempotent.
//
// # Modules
//
// A module is any value implementing Module. Modules are siblings keyed by a
// unique name; they never see each other's state. For each command every
// module runs concurrently, and the loop waits for all of them before the next
// update. A failing or panicking module is logged under its name and does not
// affect the others.
//
// # Snapshot
//
// The snapshot is a msgpack envelope holding the high-water mark and one
// opaque blob per module. Blobs for modules that are no longer registered are
// skipped on load.
package bot
