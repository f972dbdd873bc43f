package workflow

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/source"
)

// ErrInvalidTransition is returned when a stage change violates the
// lifecycle ordering.
var ErrInvalidTransition = stderrors.New("invalid stage transition")

// Warning is a non-fatal problem recorded while a workflow ran.
type Warning struct {
	Code    errors.Code `json:"code" bson:"code"`
	Message string      `json:"message" bson:"message"`
	Subject string      `json:"subject,omitempty" bson:"subject,omitempty"`
}

// Failure is the terminal reason of a failed workflow.
type Failure struct {
	Code    errors.Code `json:"code" bson:"code"`
	Message string      `json:"message" bson:"message"`

	// Stage is the stage that was executing when the workflow failed.
	Stage Stage `json:"stage" bson:"stage"`
}

// StepType identifies an on-chain call made during settlement.
type StepType string

const (
	StepReceipt    StepType = "receipt"
	StepAllocation StepType = "allocation"
	StepSign       StepType = "sign"
	StepWorkflow   StepType = "workflow"
)

// Step records one on-chain call.
type Step struct {
	Type      StepType  `json:"type" bson:"type"`
	TxHash    string    `json:"tx_hash" bson:"tx_hash"`
	RelatedID string    `json:"related_id,omitempty" bson:"related_id,omitempty"`
	At        time.Time `json:"at" bson:"at"`
}

// Workflow is one run of the pipeline for a repository reference.
type Workflow struct {
	ID     string     `json:"id" bson:"_id"`
	Ref    source.Ref `json:"ref" bson:"ref"`
	Budget int64      `json:"budget" bson:"budget"`
	Stage  Stage      `json:"stage" bson:"stage"`

	// Revision is the resolved commit, known once Fetching completed.
	Revision string `json:"revision,omitempty" bson:"revision,omitempty"`

	// Project is "owner/name" of the analysed project.
	Project string `json:"project,omitempty" bson:"project,omitempty"`

	// Wallet receives the workflow registration on the ledger. Settlement
	// does not start without it.
	Wallet         string `json:"wallet_address,omitempty" bson:"wallet,omitempty"`
	AwaitingWallet bool   `json:"awaiting_wallet,omitempty" bson:"awaiting_wallet,omitempty"`

	Warnings []Warning `json:"warnings,omitempty" bson:"warnings,omitempty"`
	Failure  *Failure  `json:"failure,omitempty" bson:"failure,omitempty"`
	Steps    []Step    `json:"steps,omitempty" bson:"steps,omitempty"`

	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" bson:"finished_at,omitempty"`

	// Version increases on every persisted change.
	Version int64 `json:"version" bson:"version"`
}

// New creates a workflow in the Created stage with a random id.
func New(ref source.Ref, budget int64, now time.Time) *Workflow {
	return &Workflow{
		ID:        uuid.NewString(),
		Ref:       ref,
		Budget:    budget,
		Stage:     StageCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the workflow has finished.
func (w *Workflow) Terminal() bool { return w.Stage.Terminal() }

// Succeeded reports whether the workflow completed.
func (w *Workflow) Succeeded() bool { return w.Stage == StageCompleted }

// Advance moves the workflow to the next stage.
func (w *Workflow) Advance(to Stage, now time.Time) error {
	if to == StageFailed || !CanTransition(w.Stage, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Stage, to)
	}
	w.Stage = to
	w.UpdatedAt = now
	if to.Terminal() {
		w.FinishedAt = &now
	}
	return nil
}

// Fail moves the workflow into Failed with a reason. The code falls back
// to INTERNAL_ERROR when err carries none.
func (w *Workflow) Fail(err error, now time.Time) error {
	if !CanTransition(w.Stage, StageFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Stage, StageFailed)
	}
	w.Failure = &Failure{
		Code:    errors.CodeOr(err, errors.ErrCodeInternal),
		Message: errors.UserMessage(err),
		Stage:   w.Stage,
	}
	w.Stage = StageFailed
	w.AwaitingWallet = false
	w.UpdatedAt = now
	w.FinishedAt = &now
	return nil
}

// Warn records a non-fatal problem. Identical warnings are recorded once.
func (w *Workflow) Warn(code errors.Code, subject, message string) {
	wn := Warning{Code: code, Message: message, Subject: subject}
	for _, existing := range w.Warnings {
		if existing == wn {
			return
		}
	}
	w.Warnings = append(w.Warnings, wn)
}

// WarnErr records err as a warning, using its code when it has one.
func (w *Workflow) WarnErr(err error, subject string) {
	w.Warn(errors.CodeOr(err, errors.ErrCodeInternal), subject, errors.UserMessage(err))
}

// AddStep records an on-chain call unless the same transaction was already
// recorded.
func (w *Workflow) AddStep(s Step) {
	for _, existing := range w.Steps {
		if existing.Type == s.Type && existing.TxHash == s.TxHash && existing.RelatedID == s.RelatedID {
			return
		}
	}
	w.Steps = append(w.Steps, s)
}

// Clone returns a deep copy.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Warnings = append([]Warning(nil), w.Warnings...)
	c.Steps = append([]Step(nil), w.Steps...)
	if w.Failure != nil {
		f := *w.Failure
		c.Failure = &f
	}
	if w.FinishedAt != nil {
		t := *w.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
