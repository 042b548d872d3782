package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"whopays/internal/core"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "whopays-cli",
		Short:         "Administer the who-pays ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print results as JSON.")

	root.AddCommand(
		stateCmd(a),
		nextCmd(a),
		runCmd(a),
		setPriceCmd(a),
		removeCmd(a),
		resetCmd(a),
		clearHistoryCmd(a),
		seedCmd(a),
	)
	return root
}

func stateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show prices, balances and recent rounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := a.ledger.GetState(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, state)
			}
			return printState(a.out, state, terminalWidth())
		},
	}
}

func nextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next [people...]",
		Short: "Preview who pays the next round",
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := a.ledger.PreviewNext(cmd.Context(), args, a.tie)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, next)
			}
			_, err = fmt.Fprintf(a.out, "Next payer: %s (total %s, tie %s)\nIncluded: %s\n",
				next.Payer, core.FormatMoney(next.TotalCost), next.Tie, strings.Join(next.Included, ", "))
			return err
		},
	}
	cmd.Flags().StringVar(&a.tie, "tie", "", "Tie-break strategy (least_recent, round_robin, alpha, random).")
	return cmd
}

func runCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [people...]",
		Short: "Run a round; everyone priced takes part when no names are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs core.ValidationErrors
			for i, name := range args {
				var ve core.ValidationError
				if _, err := core.ValidateName(name); errors.As(err, &ve) {
					errs = append(errs, core.ValidationError{Field: fmt.Sprintf("people[%d]", i), Reason: ve.Reason})
				}
			}
			if len(errs) > 0 {
				return errs
			}

			result, err := a.ledger.RunRound(cmd.Context(), core.DedupeNames(args), a.tie)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, result)
			}
			fmt.Fprintf(a.out, "%s pays %s for %s\n\n",
				result.Payer, core.FormatMoney(result.TotalCost), strings.Join(result.Included, ", "))
			return printState(a.out, core.State{Prices: result.Prices, Balances: result.Balances, History: result.History}, terminalWidth())
		},
	}
	cmd.Flags().StringVar(&a.tie, "tie", "", "Tie-break strategy (least_recent, round_robin, alpha, random).")
	return cmd
}

func setPriceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-price NAME PRICE",
		Short: "Add a participant or change their price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := a.ledger.SetPrice(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, map[string]any{
					"name":     update.Name,
					"price":    core.MoneyNumber(update.Price),
					"prices":   update.Prices,
					"balances": update.Balances,
				})
			}
			fmt.Fprintf(a.out, "%s now costs %s\n\n", update.Name, core.FormatMoney(update.Price))
			return printState(a.out, core.State{Prices: update.Prices, Balances: update.Balances}, terminalWidth())
		},
	}
}

func removeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a participant's price and balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, state, err := a.ledger.RemovePerson(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, map[string]any{
					"ok":       removed,
					"prices":   state.Prices,
					"balances": state.Balances,
				})
			}
			if removed {
				fmt.Fprintf(a.out, "Removed %s\n\n", args[0])
			} else {
				fmt.Fprintf(a.out, "%s is not in the ledger\n\n", args[0])
			}
			return printState(a.out, state, terminalWidth())
		},
	}
}

func resetCmd(a *app) *cobra.Command {
	var clearHistory bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set every balance back to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := a.ledger.ResetBalances(cmd.Context(), clearHistory)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, state)
			}
			return printState(a.out, state, terminalWidth())
		},
	}
	cmd.Flags().BoolVar(&clearHistory, "clear-history", false, "Also delete the round history.")
	return cmd
}

func clearHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Delete every recorded round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ledger.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, map[string]any{"ok": true, "history": []core.HistoryEntry{}})
			}
			_, err := fmt.Fprintln(a.out, "History cleared")
			return err
		},
	}
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the configured default prices when none exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ledger.Bootstrap(cmd.Context(), a.cfg.SeedPrices); err != nil {
				return err
			}
			state, err := a.ledger.GetState(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(a.out, state)
			}
			return printState(a.out, state, terminalWidth())
		},
	}
}
