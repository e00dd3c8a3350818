package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gramfinance/gramfin-go/internal/chain"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var chatTracer = otel.Tracer("chat")

const fallbackReply = "Something went wrong on our side. Please try again in a moment."

const helpText = `Welcome to GramFinance! You can message me:
  loan <amount> [months] - apply for a microloan
  repay - repay your active loan
  save <amount> - add money to savings
  balance - see your savings, score and loan
  insurance - see protection plans
  help - show this message`

// Facade is the slice of the financial service the bot drives.
type Facade interface {
	ApplyForLoan(ctx context.Context, userID string, amount decimal.Decimal, durationMonths int) (bool, string)
	RepayLoan(ctx context.Context, userID string) (bool, string)
	DepositSavings(ctx context.Context, userID string, amount decimal.Decimal) (bool, string)
	Overview(ctx context.Context, userID string) (*domain.AccountOverview, error)
	InsurancePlans(userID string) []domain.InsurancePlan
}

// ============================================================
// replyStrategy - one handler per command kind
// ============================================================

// replyStrategy is the contract each command handler implements. The
// first strategy whose CanHandle accepts the parsed kind wins; when none
// does the service answers with the help text.
type replyStrategy interface {
	CanHandle(kind CommandKind) bool
	Handle(ctx context.Context, user *domain.User, cmd Command) string
}

// ============================================================
// Service - parse, route, reply
// ============================================================

// Service turns inbound messages into replies. It owns user onboarding:
// an unknown sender gets a user record and a settlement wallet before
// their first command runs.
type Service struct {
	store         port.Store
	facade        Facade
	defaultMonths int
	strategies    []replyStrategy
	logger        *zap.Logger

	newWallet func() (chain.Wallet, error)
}

// NewService wires the bot with its command strategies in routing order.
func NewService(store port.Store, facade Facade, defaultMonths int, logger *zap.Logger) *Service {
	s := &Service{
		store:         store,
		facade:        facade,
		defaultMonths: defaultMonths,
		logger:        logger,
		newWallet:     chain.CreateWallet,
	}
	s.strategies = []replyStrategy{
		&loanStrategy{svc: s},
		&repayStrategy{svc: s},
		&depositStrategy{svc: s},
		&balanceStrategy{svc: s},
		&insuranceStrategy{svc: s},
	}
	return s
}

// HandleMessage processes one inbound message end to end and always
// produces a reply; internal faults degrade to a generic apology rather
// than silence.
func (s *Service) HandleMessage(ctx context.Context, msg InboundMessage) Reply {
	ctx, span := chatTracer.Start(ctx, "ChatService.HandleMessage")
	defer span.End()

	user, created, err := s.ensureUser(ctx, msg.From)
	if err != nil {
		s.logger.Error("chat onboarding failed", zap.String("from", msg.From), zap.Error(err))
		return Reply{To: msg.From, Text: fallbackReply}
	}

	cmd := ParseCommand(msg.Body)
	s.logger.Info("chat command",
		zap.String("user_id", user.ID),
		zap.String("kind", string(cmd.Kind)),
		zap.Bool("new_user", created),
	)

	for _, strategy := range s.strategies {
		if strategy.CanHandle(cmd.Kind) {
			return Reply{To: msg.From, Text: strategy.Handle(ctx, user, cmd)}
		}
	}
	return Reply{To: msg.From, Text: helpText}
}

// ensureUser resolves the sender's phone to a user, creating the record
// and a fresh settlement wallet on first contact.
func (s *Service) ensureUser(ctx context.Context, phone string) (*domain.User, bool, error) {
	user, err := s.store.GetUserByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, false, err
	}

	wallet, err := s.newWallet()
	if err != nil {
		return nil, false, err
	}
	user = &domain.User{
		ID:            uuid.NewString(),
		Phone:         phone,
		WalletAddress: wallet.Address,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// A concurrent delivery of the same first message may have won
		// the insert; fall back to the lookup.
		if u, lerr := s.store.GetUserByPhone(ctx, phone); lerr == nil {
			return u, false, nil
		}
		return nil, false, err
	}
	s.logger.Info("user onboarded",
		zap.String("user_id", user.ID),
		zap.String("wallet", wallet.Address),
	)
	return user, true, nil
}

// ============================================================
// Strategies
// ============================================================

type loanStrategy struct{ svc *Service }

func (st *loanStrategy) CanHandle(kind CommandKind) bool { return kind == CmdLoan }

func (st *loanStrategy) Handle(ctx context.Context, user *domain.User, cmd Command) string {
	months := cmd.Months
	if months == 0 {
		months = st.svc.defaultMonths
	}
	_, reply := st.svc.facade.ApplyForLoan(ctx, user.ID, cmd.Amount, months)
	return reply
}

type repayStrategy struct{ svc *Service }

func (st *repayStrategy) CanHandle(kind CommandKind) bool { return kind == CmdRepay }

func (st *repayStrategy) Handle(ctx context.Context, user *domain.User, _ Command) string {
	_, reply := st.svc.facade.RepayLoan(ctx, user.ID)
	return reply
}

type depositStrategy struct{ svc *Service }

func (st *depositStrategy) CanHandle(kind CommandKind) bool { return kind == CmdDeposit }

func (st *depositStrategy) Handle(ctx context.Context, user *domain.User, cmd Command) string {
	_, reply := st.svc.facade.DepositSavings(ctx, user.ID, cmd.Amount)
	return reply
}

type balanceStrategy struct{ svc *Service }

func (st *balanceStrategy) CanHandle(kind CommandKind) bool { return kind == CmdBalance }

func (st *balanceStrategy) Handle(ctx context.Context, user *domain.User, _ Command) string {
	ov, err := st.svc.facade.Overview(ctx, user.ID)
	if err != nil {
		return fallbackReply
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Savings: ₹%s\n", ov.SavingsBalance.StringFixed(2))
	fmt.Fprintf(&b, "Credit score: %d\n", ov.CreditScore)
	if ov.ActiveLoan != nil {
		fmt.Fprintf(&b, "Loan: ₹%s (%s), monthly payment ₹%s",
			ov.ActiveLoan.Amount.StringFixed(0),
			ov.ActiveLoan.Status,
			ov.ActiveLoan.MonthlyPayment.StringFixed(2),
		)
	} else {
		b.WriteString("No active loan.")
	}
	return b.String()
}

type insuranceStrategy struct{ svc *Service }

func (st *insuranceStrategy) CanHandle(kind CommandKind) bool { return kind == CmdInsurance }

func (st *insuranceStrategy) Handle(_ context.Context, user *domain.User, _ Command) string {
	var b strings.Builder
	b.WriteString("Protection plans for you:\n")
	for _, p := range st.svc.facade.InsurancePlans(user.ID) {
		fmt.Fprintf(&b, "- %s: %s, covers %s. %s\n", p.Type, p.Premium, p.Coverage, p.Description)
	}
	b.WriteString("Reply with a plan name to learn more.")
	return b.String()
}
