// Package chat is the conversational front door: it receives WhatsApp
// webhook deliveries, parses free-text commands, routes them to the
// financial facade through per-command strategies, and formats replies
// a feature-phone user can read.
package chat

import "github.com/shopspring/decimal"

// --- webhook wire format ---

// WebhookPayload mirrors the WhatsApp Business delivery envelope. Only
// the fields the bot reads are declared; everything else is ignored.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	Changes []Change `json:"changes"`
}

type Change struct {
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	Messages []WebhookMessage `json:"messages"`
}

type WebhookMessage struct {
	From string      `json:"from"`
	Text MessageText `json:"text"`
}

type MessageText struct {
	Body string `json:"body"`
}

// Messages flattens the delivery envelope into the (sender, body) pairs
// the bot acts on. Entries without text messages contribute nothing.
func (p *WebhookPayload) Messages() []InboundMessage {
	var out []InboundMessage
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			for _, m := range c.Value.Messages {
				if m.From == "" || m.Text.Body == "" {
					continue
				}
				out = append(out, InboundMessage{From: m.From, Body: m.Text.Body})
			}
		}
	}
	return out
}

// --- conversation types ---

// InboundMessage is one user message after envelope extraction.
type InboundMessage struct {
	From string
	Body string
}

// Reply is the bot's answer to one inbound message.
type Reply struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// --- commands ---

// CommandKind is the intent detected in a message.
type CommandKind string

const (
	CmdLoan      CommandKind = "loan"
	CmdRepay     CommandKind = "repay"
	CmdDeposit   CommandKind = "deposit"
	CmdBalance   CommandKind = "balance"
	CmdInsurance CommandKind = "insurance"
	CmdHelp      CommandKind = "help"
)

// Command is a parsed user instruction. Amount is zero-valued for
// commands that carry no amount; Months is 0 when the user left the
// duration to the default.
type Command struct {
	Kind   CommandKind
	Amount decimal.Decimal
	Months int
}
