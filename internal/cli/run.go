package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/deprank/pkg/config"
	"github.com/matzehuels/deprank/pkg/engine"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// refFlags are the repository reference flags shared by run and graph.
type refFlags struct {
	branch string
	tag    string
	rev    string
}

func (f *refFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.branch, "branch", "", "branch to analyse")
	cmd.Flags().StringVar(&f.tag, "tag", "", "tag to analyse")
	cmd.Flags().StringVar(&f.rev, "rev", "", "commit to analyse (wins over --tag and --branch)")
}

func (f *refFlags) ref(repo string) source.Ref {
	return source.Ref{Repo: repo, Branch: f.branch, Tag: f.tag, Rev: f.rev}
}

// runCommand creates the run command, which executes one workflow in
// process and prints its allocations.
func (c *CLI) runCommand() *cobra.Command {
	var (
		refs   refFlags
		budget int64
		wallet string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run <repo>",
		Short: "Analyse a repository and allocate a budget to its contributors",
		Long: `Run fetches the repository, builds its dependency graph, ranks contributors and
allocates the budget. Settlement only starts when --wallet is given; without it
the allocations are printed as pending.`,
		Example: `  deprank run github.com/acme/widget --budget 5000
  deprank run github.com/acme/widget --tag v1.2.0 --wallet 0xabc --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			req := engine.CreateRequest{Ref: refs.ref(args[0]), Wallet: wallet}
			if cmd.Flags().Changed("budget") {
				req.Budget = &budget
			}

			ctx := withLogger(cmd.Context(), c.Logger)
			rt, w, err := c.execute(ctx, cfg, req, backend{ephemeral: true, dryRun: dryRun})
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			allocs, err := rt.Engine.Allocations(ctx, w.ID)
			if err != nil {
				return err
			}
			printWorkflow(w)
			fmt.Fprintln(cmd.OutOrStdout(), allocationTable(allocs))
			if w.AwaitingWallet {
				printNewline()
				printNextStep("Settle the allocations", fmt.Sprintf("deprank run %s --wallet <address>", w.Ref.Repo))
			}
			return nil
		},
	}

	refs.register(cmd)
	cmd.Flags().Int64Var(&budget, "budget", 0, "budget to distribute (default from config)")
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address that registers the workflow")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "settle against an in-memory ledger")

	return cmd
}

// execute starts a workflow on a fresh runtime and waits for it to stop,
// either terminal or parked for a wallet. The caller closes the runtime.
func (c *CLI) execute(ctx context.Context, cfg config.Config, req engine.CreateRequest, b backend) (*runtime, *workflow.Workflow, error) {
	rt, err := c.newRuntime(ctx, cfg, b)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*runtime, *workflow.Workflow, error) {
		_ = rt.Close(context.WithoutCancel(ctx))
		return nil, nil, err
	}

	prog := newProgress(loggerFromContext(ctx))
	spin := newSpinner(ctx, os.Stderr, "Analysing "+req.Ref.Repo+"...")
	restore := reportStages(req.Ref.Repo, spin)
	defer restore()

	w, err := rt.Engine.Create(ctx, req)
	if err != nil {
		spin.Stop()
		return fail(err)
	}
	spin.Start()
	w, err = rt.Engine.Wait(ctx, w.ID)
	if err != nil {
		if spin.Cancelled() {
			spin.StopWithError("Interrupted")
		} else {
			spin.StopWithError("Lost track of the workflow")
		}
		return fail(err)
	}
	if w.Stage == workflow.StageFailed {
		spin.StopWithError("Workflow failed")
		return fail(failureError(w))
	}
	spin.Stop()
	prog.done("workflow stopped", "workflow", w.ID, "stage", w.Stage)
	return rt, w, nil
}

// failureError turns a failed workflow back into a coded error.
func failureError(w *workflow.Workflow) error {
	if w.Failure == nil {
		return errors.New(errors.ErrCodeInternal, "workflow %s failed", w.ID)
	}
	return errors.New(w.Failure.Code, "%s (at %s)", w.Failure.Message, w.Failure.Stage)
}

func printWorkflow(w *workflow.Workflow) {
	switch {
	case w.Succeeded():
		printSuccess("Settled %s", StyleHighlight.Render(w.Ref.Repo))
	case w.AwaitingWallet:
		printWarning("No wallet bound, allocations are pending")
	default:
		printInfo("Workflow %s", w.Stage)
	}
	printKeyValue("Workflow", w.ID)
	if w.Revision != "" {
		printKeyValue("Revision", shortRevision(w.Revision))
	}
	printKeyValue("Budget", strconv.FormatInt(w.Budget, 10))
	for _, warn := range w.Warnings {
		printDetail("%s: %s", warn.Code, warn.Message)
	}
	printNewline()
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleAmount = styleCell.Foreground(colorWhite).Align(lipgloss.Right)
)

// allocationTable renders allocations in rank order.
func allocationTable(allocs []workflow.Allocation) string {
	if len(allocs) == 0 {
		return StyleDim.Render("  no allocations")
	}
	rows := make([][]string, 0, len(allocs))
	for i, a := range allocs {
		wallet := a.Wallet
		if wallet == "" {
			wallet = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			a.Identity,
			strconv.FormatInt(a.Amount, 10),
			strconv.FormatFloat(a.Score, 'f', 4, 64),
			string(a.Status),
			wallet,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "CONTRIBUTOR", "AMOUNT", "SCORE", "STATUS", "WALLET").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case col == 2 || col == 3:
				return styleAmount
			}
			return styleCell
		})
	return t.String()
}
