// Package flow holds the orchestration model: datasets, images, tasks and
// the registry they live in, plus the algorithms that move a flow forward.
//
// It is intentionally split into:
//   - Construction-time structure (Registry, Task, derived DAG edges),
//     validated eagerly and serialized as a flat graph file
//   - Disk-backed execution state (job definitions, the per-task ledger,
//     and per-entity status records), mutated incrementally by
//     materialization, finalization and the worker processes
//
// Concurrency is inter-process: the package takes no in-process locks and
// relies on the status store's per-record advisory locking. Callers must
// serialize materialization per task.
package flow
