package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/llmgate/fault"
	"github.com/jonwraymond/llmgate/observe"
)

// OperationClass is a category of downstream call with its own limiter and
// credit-cost settings.
type OperationClass string

const (
	ClassChat          OperationClass = "chat"
	ClassImage         OperationClass = "image"
	ClassSpeech        OperationClass = "speech"
	ClassTranscription OperationClass = "transcription"
)

// Valid reports whether the class is one of the known operation classes.
func (c OperationClass) Valid() bool {
	switch c {
	case ClassChat, ClassImage, ClassSpeech, ClassTranscription:
		return true
	default:
		return false
	}
}

// Unlimited is the sentinel remaining balance for plans without a limit.
const Unlimited int64 = -1

// CostTable maps operation classes to their per-unit credit cost.
type CostTable map[OperationClass]int64

// DefaultCostTable returns the product's credit costs: 1 per chat message,
// 10 per image, 5 per voice minute.
func DefaultCostTable() CostTable {
	return CostTable{
		ClassChat:          1,
		ClassImage:         10,
		ClassSpeech:        5,
		ClassTranscription: 5,
	}
}

// Balance is a user's remaining credit balance as reported by the ledger.
type Balance struct {
	// Remaining credits, or Unlimited for plans without a limit.
	Remaining int64
}

// Ledger is the usage-ledger collaborator. It owns plan limits and usage
// counters; this layer only reads balances and reports consumption deltas.
type Ledger interface {
	// CheckCredits returns the user's remaining balance.
	CheckCredits(ctx context.Context, userID string, class OperationClass, quantity int64) (Balance, error)

	// RecordUsage reports consumed credits.
	RecordUsage(ctx context.Context, userID string, class OperationClass, amount int64) error
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int64
	Required  int64
}

// ControllerConfig configures the Controller.
type ControllerConfig struct {
	// Costs maps classes to per-unit credit costs.
	// Default: DefaultCostTable()
	Costs CostTable

	// BalanceTTL is how long a ledger balance read is cached.
	// Default: 2 seconds
	BalanceTTL time.Duration

	// RecordTimeout bounds the asynchronous usage-recording call.
	// Default: 10 seconds
	RecordTimeout time.Duration
}

// Controller is the credit gate in front of the request executor.
type Controller struct {
	config ControllerConfig
	ledger Ledger
	cache  *balanceCache
	logger observe.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger used for admission events.
func WithLogger(logger observe.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a Controller backed by the given ledger.
func NewController(ledger Ledger, config ControllerConfig, opts ...ControllerOption) *Controller {
	// Apply defaults
	if config.Costs == nil {
		config.Costs = DefaultCostTable()
	}
	if config.BalanceTTL <= 0 {
		config.BalanceTTL = 2 * time.Second
	}
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = 10 * time.Second
	}

	c := &Controller{
		config: config,
		ledger: ledger,
		cache:  newBalanceCache(config.BalanceTTL),
		logger: observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cost returns the credit cost for quantity units of the class.
func (c *Controller) Cost(class OperationClass, quantity int64) (int64, error) {
	cost, ok := c.config.Costs[class]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	return cost * quantity, nil
}

// Admit checks whether the user has enough credits for the request. Denial
// returns a populated Decision alongside an error wrapping
// fault.ErrInsufficientCredits; ledger read failures fail closed.
func (c *Controller) Admit(ctx context.Context, userID string, class OperationClass, quantity int64) (Decision, error) {
	required, err := c.Cost(class, quantity)
	if err != nil {
		return Decision{}, err
	}

	remaining, ok := c.cache.get(userID)
	if !ok {
		balance, err := c.ledger.CheckCredits(ctx, userID, class, quantity)
		if err != nil {
			c.logger.Error(ctx, "ledger read failed, denying admission",
				observe.Field{Key: "user_id", Value: userID},
				observe.Field{Key: "op.class", Value: string(class)},
				observe.Field{Key: "error", Value: err.Error()},
			)
			return Decision{Required: required}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		remaining = balance.Remaining
		c.cache.set(userID, remaining)
	}

	decision := Decision{
		Remaining: remaining,
		Required:  required,
	}

	if remaining == Unlimited || remaining >= required {
		decision.Allowed = true
		return decision, nil
	}

	c.logger.Info(ctx, "admission denied",
		observe.Field{Key: "user_id", Value: userID},
		observe.Field{Key: "op.class", Value: string(class)},
		observe.Field{Key: "remaining", Value: remaining},
		observe.Field{Key: "required", Value: required},
	)

	return decision, fmt.Errorf("%w: need %d credits, %d remaining",
		fault.ErrInsufficientCredits, required, remaining)
}

// RecordUsage reports consumed credits asynchronously. The user-facing
// request has already completed, so a recording failure is logged at
// warning for reconciliation but never surfaced.
func (c *Controller) RecordUsage(userID string, class OperationClass, amount int64) {
	// Drop the cached balance so the next admission sees the deduction
	c.cache.invalidate(userID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.RecordTimeout)
		defer cancel()

		if err := c.ledger.RecordUsage(ctx, userID, class, amount); err != nil {
			c.logger.Warn(ctx, "failed to record usage, needs reconciliation",
				observe.Field{Key: "user_id", Value: userID},
				observe.Field{Key: "op.class", Value: string(class)},
				observe.Field{Key: "amount", Value: amount},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}()
}
