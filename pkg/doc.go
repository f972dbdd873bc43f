// Package pkg provides the core libraries of DepRank.
//
// # Overview
//
// DepRank turns a repository reference into a set of payouts. The pkg
// directory is organized by concern:
//
//  1. Domain: [source], [manifest], [dag], [deps], [rank], [allocation]
//  2. Orchestration: [workflow] (records and lifecycle), [engine] (stage runner)
//  3. Settlement: [settlement] (ledger adapters and the settler)
//  4. Infrastructure: [store], [lease], [cache], [httputil], [observability]
//  5. Integrations: [integrations] (GitHub metrics, package registries)
//  6. Support: [config], [errors], [render], [buildinfo]
//
// # Architecture
//
// A workflow moves through its stages, checkpointing after each:
//
//	Repository reference
//	         ↓
//	    [source] fetch a pinned snapshot (Fetching)
//	         ↓
//	    [manifest] + [deps] build the dependency graph (Analyzing)
//	         ↓
//	    [rank] score nodes and contributors (Ranking)
//	         ↓
//	    [allocation] split the budget (Allocating)
//	         ↓
//	    [settlement] submit and confirm transfers (Settling)
//
// # Quick Start
//
//	e, err := engine.New(engine.Options{
//	    Pipeline: config.Default().Pipeline,
//	    Store:    store.NewMemory(),
//	    Fetcher:  fetcher,
//	    Chain:    settlement.NewMemoryLedger(),
//	})
//	w, err := e.Create(ctx, engine.CreateRequest{Ref: source.Ref{Repo: "github.com/acme/widget"}})
//	w, err = e.Wait(ctx, w.ID)
//	allocs, err := e.Allocations(ctx, w.ID)
package pkg
