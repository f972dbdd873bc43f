// Package engine runs deprank workflows.
//
// An [Engine] owns the lifecycle of every workflow it starts. Each workflow
// walks the stages
//
//	created → fetching → analyzing → ranking → allocating → settling → completed
//
// and may end in failed from any non-terminal stage. The stage being
// executed is persisted before it runs, so a restarted process calls
// [Engine.Recover] and re-runs that stage. Every stage is safe to repeat:
// fetches hit the snapshot cache, artifacts are replaced wholesale, record
// ids are derived from the workflow id, and settlement skips work already
// recorded on the workflow.
//
// # Concurrency
//
// One goroutine drives one workflow and holds its lease for the whole run,
// so a workflow has a single writer even when several instances share a
// store. Network-bound stages (fetching, analyzing, settling) and
// CPU-bound stages (ranking, allocating) acquire slots from separate
// weighted semaphores.
//
// Cancellation is cooperative. [Engine.Cancel] and [Engine.Delete] cancel
// the run's context; stages observe it between iterations and at I/O
// boundaries, after which the workflow is failed with CANCELLED and its
// artifacts are discarded. [Engine.Close] stops runs without failing them
// so that they resume on the next Recover.
//
// # Retries
//
// Stage errors with a retryable code (network failures, stage timeouts,
// unconfirmed settlements) are retried with exponential backoff up to
// MaxRetries times. Everything else fails the workflow with the error's
// code.
package engine
