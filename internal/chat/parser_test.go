package chat

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCommand_Phrasings(t *testing.T) {
	cases := []struct {
		text   string
		kind   CommandKind
		amount string
		months int
	}{
		{"loan 2000", CmdLoan, "2000", 0},
		{"loan 2000 3", CmdLoan, "2000", 3},
		{"Loan ₹1,500 pls", CmdLoan, "1500", 0},
		{"i want to borrow 500 for 6 months", CmdLoan, "500", 6},
		{"loan", CmdLoan, "0", 0},
		{"repay", CmdRepay, "0", 0},
		{"I want to payback my loan", CmdRepay, "0", 0},
		{"save 100", CmdDeposit, "100", 0},
		{"deposit ₹250.50", CmdDeposit, "250.5", 0},
		{"add 50 to savings", CmdDeposit, "50", 0},
		{"balance", CmdBalance, "0", 0},
		{"check my savings", CmdBalance, "0", 0},
		{"what is my account balance?", CmdBalance, "0", 0},
		{"insurance", CmdInsurance, "0", 0},
		{"bima options", CmdInsurance, "0", 0},
		{"help", CmdHelp, "0", 0},
		{"namaste", CmdHelp, "0", 0},
		{"", CmdHelp, "0", 0},
	}

	for _, tc := range cases {
		got := ParseCommand(tc.text)
		if got.Kind != tc.kind {
			t.Errorf("ParseCommand(%q).Kind = %s, want %s", tc.text, got.Kind, tc.kind)
			continue
		}
		if !got.Amount.Equal(decimal.RequireFromString(tc.amount)) {
			t.Errorf("ParseCommand(%q).Amount = %s, want %s", tc.text, got.Amount, tc.amount)
		}
		if got.Months != tc.months {
			t.Errorf("ParseCommand(%q).Months = %d, want %d", tc.text, got.Months, tc.months)
		}
	}
}

func TestParseCommand_IgnoresUnreasonableDurations(t *testing.T) {
	// A second number outside 1..36 cannot be a duration in months.
	got := ParseCommand("loan 2000 2027")
	if got.Months != 0 {
		t.Errorf("Months = %d, want 0 for an implausible duration", got.Months)
	}
}
