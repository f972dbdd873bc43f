// Package workflow defines the workflow lifecycle and the records a workflow
// produces.
//
// A workflow moves forward through a fixed sequence of stages:
//
//	Created → Fetching → Analyzing → Ranking → Allocating → Settling → Completed
//
// Failed is reachable from every non-terminal stage. Completed and Failed are
// terminal. [CanTransition] encodes these rules and [Workflow.Advance] and
// [Workflow.Fail] enforce them, so a workflow can never move backward.
//
// The stage stored on a workflow is the stage currently executing. It is
// persisted before the stage starts, which makes it the checkpoint a
// recovering process resumes from: every stage reads only the artifacts
// persisted by earlier stages and is safe to run again.
//
// The derived records ([Project], [Contribution], [Analysis], [Scores],
// [Allocation]) carry json and bson tags and are stored as artifacts of the
// workflow that produced them.
package workflow
