// Package settlement records allocations on an external ledger.
//
// # Boundary
//
// [Chain] is the ledger capability. Two adapters ship with the package:
// [RPCChain] speaks JSON-RPC over HTTP to a ledger node, signing every
// request with an ed25519 key, and [MemoryLedger] keeps everything in
// memory for tests and dry runs.
//
// # Lifecycle
//
// [Settler.Settle] drives one workflow through the ledger:
//
//  1. Register the workflow with its wallet.
//  2. Record one receipt per dependency. The metadata hash is the sha256
//     of the dependency's JSON encoding.
//  3. Submit one transfer per allocation and poll until it is final.
//  4. Finish the workflow.
//
// Each call is recorded on the workflow as a [workflow.Step] and persisted
// through a callback before the next call, so an interrupted settlement
// resumes where it stopped.
//
// # Idempotency
//
// Transfers carry the key "workflowID:identity". Adapters must return the
// original receipt when a key is submitted again, and the Settler never
// resubmits an allocation that already holds a receipt. Retrying a
// settlement therefore cannot pay twice.
package settlement
