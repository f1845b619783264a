package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/chainrisk/engine/assess"
	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/graph"
	"github.com/WessleyAI/chainrisk/engine/priority"
)

// prioritized is the output of the prioritize command.
type prioritized struct {
	Ranked   []domain.PrioritizedRisk `json:"ranked"`
	Products []priority.EntityRisk    `json:"products"`
	Alerts   []domain.PrioritizedRisk `json:"alerts"`
	Failed   []domain.EntityFailure   `json:"failed"`
}

func newPrioritizeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prioritize <events.json>",
		Short: "Assess and rank a batch of risk events",
		Long: `Assesses every event in a JSON array concurrently, ranks them by priority
and aggregates exposure per affected product. Events matching the
configured alert rules are listed under "alerts".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEvents(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				b, err := prioritize(cmd.Context(), a, events)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), prioritized{
					Ranked:   b.Ranked,
					Products: b.Products,
					Alerts:   a.policy.Select(b.Ranked),
					Failed:   b.Failed,
				})
			})
		},
	}
}

func prioritize(ctx context.Context, a *app, events []domain.RiskEvent) (assess.Batch, error) {
	p, err := a.pipeline()
	if err != nil {
		return assess.Batch{}, err
	}
	return p.AssessBatch(ctx, events), nil
}

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Load a YAML graph fixture into the graph backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := graph.ReadFixture(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				if err := f.Apply(cmd.Context(), a.store); err != nil {
					return fmt.Errorf("import %s: %w", args[0], err)
				}
				a.logger.Info("fixture imported", "path", args[0], "nodes", len(f.Nodes), "edges", len(f.Edges))
				stats, err := a.store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}
