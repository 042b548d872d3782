package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"whopays/internal/core"
)

const (
	defaultColumns = 80
	amountWidth    = 10
	recentRounds   = 5
)

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			return w
		}
	}
	return defaultColumns
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printState writes a price/balance table fitted to columns, followed by
// the most recent rounds.
func printState(w io.Writer, state core.State, columns int) error {
	buf := bufio.NewWriter(w)

	names := state.Prices.Names()
	for _, name := range state.Balances.Names() {
		if _, ok := state.Prices.Lookup(name); !ok {
			names = append(names, name)
		}
	}

	nameWidth := len("NAME")
	for _, name := range names {
		nameWidth = max(nameWidth, utf8.RuneCountInString(name))
	}
	// name + two amount columns, each preceded by a space
	nameWidth = max(4, min(nameWidth, columns-2*(amountWidth+1)))
	lineWidth := nameWidth + 2*(amountWidth+1)

	fmt.Fprintf(buf, "%-*s %*s %*s\n", nameWidth, "NAME", amountWidth, "PRICE", amountWidth, "BALANCE")
	fmt.Fprintln(buf, strings.Repeat("-", lineWidth))

	total := decimal.Zero
	for _, name := range names {
		price := "-"
		if key, ok := state.Prices.Lookup(name); ok {
			price = core.FormatMoney(state.Prices[key])
		}
		balance := core.Quantize(decimal.Zero)
		if key, ok := state.Balances.Lookup(name); ok {
			balance = state.Balances[key]
		}
		total = total.Add(balance)
		fmt.Fprintf(buf, "%-*s %*s %*s\n", nameWidth, truncate(name, nameWidth), amountWidth, price, amountWidth, core.FormatMoney(balance))
	}
	fmt.Fprintln(buf, strings.Repeat("-", lineWidth))
	fmt.Fprintf(buf, "%-*s %*s %*s\n", nameWidth, "", amountWidth, "", amountWidth, core.FormatMoney(core.Quantize(total)))

	if n := len(state.History); n > 0 {
		fmt.Fprintf(buf, "\n%d round(s), most recent first:\n", n)
		for i := n - 1; i >= 0 && i >= n-recentRounds; i-- {
			e := state.History[i]
			line := fmt.Sprintf("  %s  %s paid %s for %s", e.Timestamp, e.Payer, core.FormatMoney(e.TotalCost), strings.Join(e.People, ", "))
			fmt.Fprintln(buf, truncate(line, columns))
		}
	}
	return buf.Flush()
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 1 {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-1]) + "…"
}
