package chat

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCommand maps free text to a Command by keyword, the same loose
// matching a person typing on a feature phone needs: "Loan 2000 pls",
// "i want to borrow ₹1500 for 3 months" and "loan 2000 3" all parse the
// same. Unrecognized text falls through to help.
func ParseCommand(text string) Command {
	lower := strings.ToLower(strings.TrimSpace(text))
	words := strings.Fields(lower)

	switch {
	case containsAny(words, "loan", "borrow", "udhaar"):
		amount, months := extractAmountAndMonths(words)
		return Command{Kind: CmdLoan, Amount: amount, Months: months}

	case containsAny(words, "repay", "payback"):
		return Command{Kind: CmdRepay}

	case containsAny(words, "save", "deposit", "savings") && hasNumber(words):
		amount, _ := extractAmountAndMonths(words)
		return Command{Kind: CmdDeposit, Amount: amount}

	case containsAny(words, "balance", "account", "savings"):
		return Command{Kind: CmdBalance}

	case containsAny(words, "insurance", "insure", "bima"):
		return Command{Kind: CmdInsurance}

	default:
		return Command{Kind: CmdHelp}
	}
}

func containsAny(words []string, keys ...string) bool {
	for _, w := range words {
		for _, k := range keys {
			if strings.Trim(w, ".,!?") == k {
				return true
			}
		}
	}
	return false
}

func hasNumber(words []string) bool {
	for _, w := range words {
		if _, ok := parseAmount(w); ok {
			return true
		}
	}
	return false
}

// extractAmountAndMonths takes the first number as the rupee amount and
// the second, if it is a small integer, as a duration in months.
func extractAmountAndMonths(words []string) (decimal.Decimal, int) {
	amount := decimal.Zero
	months := 0
	seen := 0
	for _, w := range words {
		d, ok := parseAmount(w)
		if !ok {
			continue
		}
		seen++
		switch seen {
		case 1:
			amount = d
		case 2:
			if n, err := strconv.Atoi(d.String()); err == nil && n >= 1 && n <= 36 {
				months = n
			}
			return amount, months
		}
	}
	return amount, months
}

// parseAmount reads a token as a rupee figure, tolerating the ₹ sign and
// thousands separators.
func parseAmount(token string) (decimal.Decimal, bool) {
	cleaned := strings.Trim(token, ".,!?")
	cleaned = strings.TrimPrefix(cleaned, "₹")
	cleaned = strings.TrimPrefix(cleaned, "rs")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
