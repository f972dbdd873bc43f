package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deprank/pkg/config"
	"github.com/matzehuels/deprank/pkg/engine"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// airdropCommand creates the airdrop management command. Airdrops live in
// the configured store, so these commands only make sense against a
// persistent backend shared with a running server.
func (c *CLI) airdropCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airdrop",
		Short: "Manage airdrops over completed workflows",
	}

	cmd.AddCommand(c.airdropCreateCommand())
	cmd.AddCommand(c.airdropShowCommand())
	cmd.AddCommand(c.airdropCloseCommand())

	return cmd
}

// withEngine runs fn against an engine over the configured store.
func (c *CLI) withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverMongo {
		printWarning("Store driver is %q, airdrops will not outlive this command", cfg.Store.Driver)
	}
	rt, err := c.newRuntime(ctx, cfg, backend{})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	return fn(ctx, rt.Engine)
}

func (c *CLI) airdropCreateCommand() *cobra.Command {
	var req engine.AirdropRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an airdrop for the contributors of a completed workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.CreateAirdrop(ctx, req)
				if err != nil {
					return err
				}
				printSuccess("Opened airdrop %s", StyleHighlight.Render(a.Name))
				printAirdrop(a)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "airdrop name")
	cmd.Flags().StringVar(&req.WorkflowID, "workflow", "", "completed workflow whose allocations decide eligibility")
	cmd.Flags().Int64Var(&req.MinAmount, "min", 0, "minimum allocation amount to be eligible")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("workflow")

	return cmd
}

func (c *CLI) airdropShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an airdrop and its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Airdrop(ctx, args[0])
				if err != nil {
					return err
				}
				printAirdrop(a)
				for _, cl := range a.Claims {
					printDetail("%s  %s  %d", cl.Address, cl.Identity, cl.Amount)
				}
				return nil
			})
		},
	}
}

func (c *CLI) airdropCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <id>",
		Short: "Stop accepting claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.CloseAirdrop(ctx, args[0]); err != nil {
					return err
				}
				printSuccess("Closed airdrop %s", args[0])
				return nil
			})
		},
	}
}

func printAirdrop(a *workflow.Airdrop) {
	printKeyValue("ID", a.ID)
	printKeyValue("Workflow", a.WorkflowID)
	printKeyValue("Minimum", strconv.FormatInt(a.MinAmount, 10))
	printKeyValue("Status", string(a.Status))
	printKeyValue("Claims", fmt.Sprint(len(a.Claims)))
}
