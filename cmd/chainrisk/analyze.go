package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

func newImpactCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Trace how a disruption propagates through the graph",
	}

	var depth int
	event := &cobra.Command{
		Use:   "event <event.json>",
		Short: "Assess a risk event: reach, redundancy, impact score and priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := readEvent(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				if depth > 0 {
					a.cfg.Traversal.MaxDepth = depth
				}
				p, err := a.pipeline()
				if err != nil {
					return err
				}
				res, err := p.Assess(cmd.Context(), ev)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	event.Flags().IntVar(&depth, "depth", 0, "maximum hops downstream (default traversal.max_depth)")

	downstream := &cobra.Command{
		Use:   "downstream <node-id>",
		Short: "List components and products downstream of a supplier or component",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				d := depth
				if d <= 0 {
					d = a.cfg.Traversal.MaxDepth
				}
				res, err := a.traversal.FindDownstreamImpact(cmd.Context(), args[0], d)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	downstream.Flags().IntVar(&depth, "depth", 0, "maximum hops (default traversal.max_depth)")

	upstream := &cobra.Command{
		Use:   "upstream <product-id>",
		Short: "List the suppliers and components a product depends on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				d := depth
				if d <= 0 {
					d = a.cfg.Traversal.MaxDepth
				}
				res, err := a.traversal.FindUpstreamSources(cmd.Context(), args[0], d)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	upstream.Flags().IntVar(&depth, "depth", 0, "maximum hops (default traversal.max_depth)")

	cmd.AddCommand(event, downstream, upstream)
	return cmd
}

func newResilienceCmd(c *cli) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "resilience",
		Short: "Score resilience of components, products or a portfolio",
	}

	component := &cobra.Command{
		Use:   "component <component-id>",
		Short: "Score one component from its supplier base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				s, err := a.scorer.ComponentResilience(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if record {
					if _, err := a.tracker.Record(cmd.Context(), s); err != nil {
						return err
					}
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}

	product := &cobra.Command{
		Use:   "product <product-id>",
		Short: "Aggregate component resilience for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				m, err := a.scorer.ProductResilience(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if record {
					factors := map[string]float64{
						"redundancy_coverage":      m.RedundancyCoverage,
						"single_points_of_failure": float64(m.SinglePointsOfFailure),
					}
					if _, err := a.tracker.RecordScore(cmd.Context(), args[0], m.OverallScore, factors); err != nil {
						return err
					}
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}

	portfolio := &cobra.Command{
		Use:   "portfolio <product-id>...",
		Short: "Aggregate resilience across several products",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				m, err := a.scorer.PortfolioResilience(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}

	cmd.PersistentFlags().BoolVar(&record, "record", false, "append the score to resilience history")
	cmd.AddCommand(component, product, portfolio)
	return cmd
}

func newTrendCmd(c *cli) *cobra.Command {
	var (
		days    int
		history bool
	)
	cmd := &cobra.Command{
		Use:   "trend <entity-id>",
		Short: "Show the resilience trend of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				if history {
					recs, err := a.tracker.GetHistory(cmd.Context(), args[0], days)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), recs)
				}
				t, err := a.tracker.CalculateTrend(cmd.Context(), args[0], days)
				if err != nil {
					return err
				}
				if t == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "not enough history for %s in the last %d days\n", args[0], days)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), t)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window in days; 0 uses all history")
	cmd.Flags().BoolVar(&history, "history", false, "print the raw records instead of the trend")
	return cmd
}

func newPathsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "paths <from-id> <to-id>",
		Short: "Enumerate alternative supply paths between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				paths, err := a.traversal.FindAlternativePaths(cmd.Context(), args[0], args[1], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), paths)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "max", 10, "maximum paths returned")
	return cmd
}

func readEvent(path string) (domain.RiskEvent, error) {
	var ev domain.RiskEvent
	data, err := os.ReadFile(path)
	if err != nil {
		return ev, fmt.Errorf("read event: %w", err)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event %s: %w", path, err)
	}
	return ev, nil
}

func readEvents(path string) ([]domain.RiskEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var events []domain.RiskEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events %s: %w", path, err)
	}
	return events, nil
}
