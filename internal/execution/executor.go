// Package execution drives write operations (bets, swaps) through gas
// estimation, submission and confirmation.
//
// The executor keeps no nonce queue. Nonces come from the node's pending
// state, so concurrent requests signed by the same key may race for one
// nonce unless the caller serializes them.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/otel"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
	"github.com/yourorg/metaswap-gateway/internal/validation"
)

// Chain is the subset of ethclient.Client the executor needs.
type Chain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Call is the contract invocation a request translates to.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int

	// Token and Spend name an ERC-20 amount the contract pulls from the
	// sender. A zero Token means the call spends only native value.
	Token common.Address
	Spend *big.Int
}

// TokenBalances reads ERC-20 balances. *fetch.TokenReader implements it.
type TokenBalances interface {
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// CallBuilder encodes provider specific calldata.
type CallBuilder interface {
	// Options returns the request bounds the provider accepts
	Options() validation.Options
	// Build translates a validated request against the resolved quote
	Build(req model.ExecutionRequest, checked validation.Checked, q model.Quote) (Call, error)
}

// MarketReader resolves the current market state. *quote.Resolver implements it.
type MarketReader interface {
	Resolve(ctx context.Context, marketID string) (model.Quote, error)
}

// Observer receives every state transition.
type Observer interface {
	ObserveTransition(ctx context.Context, t model.Transition)
}

// Config holds the executor's tunables
type Config struct {
	Provider string

	// GasBufferPercent is added to the gas estimate, e.g. 20 for +20%
	GasBufferPercent uint64

	// WaitBudget bounds AwaitingConfirmation
	WaitBudget time.Duration

	// PollInterval is the receipt polling period
	PollInterval time.Duration

	// Confirmations required before Confirmed; values below one mean inclusion
	Confirmations uint64

	// OddsTolerance is the accepted relative drop from the expected terms
	OddsTolerance decimal.Decimal
}

// DefaultConfig returns the standard executor settings for provider
func DefaultConfig(provider string) Config {
	return Config{
		Provider:         provider,
		GasBufferPercent: 20,
		WaitBudget:       2 * time.Minute,
		PollInterval:     2 * time.Second,
		Confirmations:    1,
		OddsTolerance:    decimal.RequireFromString("0.05"),
	}
}

// Deps are the collaborators of an Executor. Signer may be nil, in which
// case every write is rejected. Tokens is required only by builders that
// set Call.Token.
type Deps struct {
	Chain    Chain
	Signer   Signer
	Builder  CallBuilder
	Markets  MarketReader
	Tokens   TokenBalances
	Store    Store
	Observer Observer
}

// Executor runs one state machine per request. Requests share no mutable
// state besides the store.
type Executor struct {
	cfg  Config
	deps Deps

	now   func() time.Time
	newID func() string
}

// NewExecutor creates an executor
func NewExecutor(cfg Config, deps Deps) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if deps.Store == nil {
		deps.Store = NewMemoryStore(0)
	}
	return &Executor{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		newID: func() string { return "exec_" + uuid.NewString() },
	}
}

// run is the state of a single execution
type run struct {
	e       *Executor
	ctx     context.Context
	req     model.ExecutionRequest
	status  model.Status
	started time.Time

	execID  string
	txHash  string
	details model.Details
}

func (r *run) advance(to model.Status, msg string) {
	from := r.status
	r.status = to
	if r.e.deps.Observer == nil {
		return
	}
	r.e.deps.Observer.ObserveTransition(r.ctx, model.Transition{
		Provider:    r.e.cfg.Provider,
		MarketID:    r.req.MarketID,
		ExecutionID: r.execID,
		TxHash:      r.txHash,
		From:        from,
		To:          to,
		Message:     msg,
		At:          r.e.now().UTC(),
		Elapsed:     r.e.now().Sub(r.started),
	})
}

// finish moves to a terminal state and freezes the outcome
func (r *run) finish(to model.Status, msg string, ferr *fault.Error) model.ExecutionOutcome {
	if ferr != nil {
		r.details.ErrorKind = string(ferr.Kind)
		r.details.Error = ferr.Raw
	}
	r.advance(to, msg)
	return model.ExecutionOutcome{
		Success:     to == model.StatusConfirmed,
		ExecutionID: r.execID,
		TxHash:      r.txHash,
		Status:      to,
		Message:     msg,
		Details:     r.details,
		CompletedAt: r.e.now().UTC(),
	}
}

func (r *run) reject(kind fault.Kind, format string, args ...any) model.ExecutionOutcome {
	ferr := fault.New(kind, format, args...)
	return r.finish(model.StatusRejected, ferr.Message, ferr)
}

// Execute drives req to a terminal outcome. Only ValidationFailed is
// returned as an error; every other failure is a terminal outcome.
func (e *Executor) Execute(ctx context.Context, req model.ExecutionRequest) (model.ExecutionOutcome, error) {
	checked, err := validation.ValidateRequest(req, e.deps.Builder.Options())
	if err != nil {
		return model.ExecutionOutcome{}, err
	}

	ctx, span := otel.StartSpan(ctx, "execution.execute",
		attribute.String("provider", e.cfg.Provider),
		attribute.String("market", req.MarketID),
	)
	defer span.End()

	r := &run{e: e, ctx: ctx, req: req, started: e.now()}
	r.advance(model.StatusValidated, "")

	out := r.execute(checked)
	span.SetAttributes(attribute.String("status", string(out.Status)))
	if !out.Success {
		otel.RecordError(ctx, errors.New(out.Message))
	}
	return out, nil
}

func (r *run) execute(checked validation.Checked) model.ExecutionOutcome {
	e := r.e
	req := r.req

	if req.Deadline != nil && !e.now().Before(*req.Deadline) {
		return r.reject(fault.TimedOut, "request deadline %s has already passed", req.Deadline.UTC().Format(time.RFC3339))
	}
	if e.deps.Signer == nil {
		ferr := fault.Classify(fault.ErrNoSigner)
		return r.finish(model.StatusRejected, ferr.Message, ferr)
	}

	q, err := e.deps.Markets.Resolve(r.ctx, req.MarketID)
	if err != nil {
		ferr := fault.Classify(err)
		return r.finish(model.StatusRejected, "market state unavailable: "+ferr.Message, ferr)
	}
	r.details.Provenance = q.Provenance

	if !q.Provenance.Actionable() {
		return r.reject(fault.ValidationFailed, "market %s is only known from static fallback data, refusing to execute", req.MarketID)
	}
	if !q.AcceptsWrites(e.now()) {
		return r.reject(fault.ValidationFailed, "market %s is closed", req.MarketID)
	}
	if !q.HasOutcome(req.Outcome) {
		return r.reject(fault.ValidationFailed, "market %s does not offer outcome %q", req.MarketID, req.Outcome)
	}
	current := q.Terms[req.Outcome]
	floor := checked.ExpectedTerms.Mul(decimal.NewFromInt(1).Sub(e.cfg.OddsTolerance))
	if current.LessThan(floor) {
		return r.reject(fault.ValidationFailed, "terms moved from %s to %s beyond tolerance", checked.ExpectedTerms, current)
	}

	call, err := e.deps.Builder.Build(req, checked, q)
	if err != nil {
		return r.reject(fault.ValidationFailed, "cannot encode call: %v", err)
	}
	payout := checked.Quantity.Mul(current)

	// Estimating
	r.advance(model.StatusEstimating, "")
	from := e.deps.Signer.Address()
	balance, ferr := r.funds(from, call)
	if ferr != nil {
		return r.finish(model.StatusReverted, "balance check failed: "+ferr.Message, ferr)
	}
	estimate, err := e.deps.Chain.EstimateGas(r.ctx, ethereum.CallMsg{
		From:  from,
		To:    &call.To,
		Value: call.Value,
		Data:  call.Data,
	})
	if err != nil {
		ferr := fault.Classify(err)
		return r.finish(model.StatusReverted, "gas estimation failed: "+ferr.Message, ferr)
	}
	gasLimit := BufferedGas(estimate, e.cfg.GasBufferPercent)
	r.details.GasEstimated = estimate
	r.details.GasLimit = gasLimit

	gasPrice, err := e.deps.Chain.SuggestGasPrice(r.ctx)
	if err != nil {
		ferr := fault.Classify(fmt.Errorf("gas price: %w", err))
		return r.finish(submissionStatus(ferr.Kind), "transaction not submitted: "+ferr.Message, ferr)
	}
	if need := maxCost(call.Value, gasLimit, gasPrice); balance.Cmp(need) < 0 {
		ferr := fault.Classify(fmt.Errorf("%w: have %s wei, need %s wei for value and gas", fault.ErrInsufficientBalance, balance, need))
		return r.finish(model.StatusReverted, "balance check failed: "+ferr.Message, ferr)
	}

	// Submitting
	r.advance(model.StatusSubmitting, "")
	signed, ferr := r.prepare(from, call, gasLimit, gasPrice)
	if ferr != nil {
		return r.finish(submissionStatus(ferr.Kind), "transaction not submitted: "+ferr.Message, ferr)
	}
	if err := e.deps.Chain.SendTransaction(r.ctx, signed); err != nil {
		ferr := fault.Classify(err)
		return r.finish(submissionStatus(ferr.Kind), "submission failed: "+ferr.Message, ferr)
	}

	r.txHash = signed.Hash().Hex()
	r.execID = e.newID()
	rec := Record{
		ExecutionID:     r.execID,
		Provider:        e.cfg.Provider,
		MarketID:        req.MarketID,
		Outcome:         req.Outcome,
		TxHash:          r.txHash,
		Provenance:      q.Provenance,
		GasEstimated:    estimate,
		GasLimit:        gasLimit,
		PotentialPayout: payout.String(),
		SubmittedAt:     e.now().UTC(),
	}
	if err := e.deps.Store.Save(r.ctx, rec); err != nil {
		logrus.WithFields(telemetry.Fields(r.ctx, logrus.Fields{
			"provider":     e.cfg.Provider,
			"execution_id": r.execID,
			"error":        err,
		})).Error("Failed to persist execution record")
	}

	// AwaitingConfirmation
	r.advance(model.StatusAwaitingConfirmation, "")
	receipt, err := r.await(signed.Hash())
	if err != nil {
		ferr := fault.Classify(err)
		if ferr.Kind != fault.TimedOut {
			ferr = &fault.Error{Kind: fault.TimedOut, Message: ferr.Message, Raw: ferr.Raw, Err: err}
		}
		return r.finish(model.StatusTimedOut,
			"transaction not confirmed within wait budget, it may still be included", ferr)
	}

	outcome := settle(rec, receipt, e.now())
	r.details = outcome.Details
	rec.Settled = &outcome
	if err := e.deps.Store.Save(r.ctx, rec); err != nil {
		logrus.WithFields(telemetry.Fields(r.ctx, logrus.Fields{
			"provider":     e.cfg.Provider,
			"execution_id": r.execID,
			"error":        err,
		})).Error("Failed to persist settled outcome")
	}
	r.advance(outcome.Status, outcome.Message)
	return outcome
}

// funds reads the sender's native balance and checks it covers the call
// value, and that any token spend is covered by the token balance.
func (r *run) funds(from common.Address, call Call) (*big.Int, *fault.Error) {
	deps := r.e.deps
	balance, err := deps.Chain.BalanceAt(r.ctx, from, nil)
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("native balance: %w", err))
	}
	if call.Value != nil && balance.Cmp(call.Value) < 0 {
		return nil, fault.Classify(fmt.Errorf("%w: have %s wei, value is %s wei", fault.ErrInsufficientBalance, balance, call.Value))
	}
	if call.Token == (common.Address{}) || call.Spend == nil || call.Spend.Sign() <= 0 {
		return balance, nil
	}
	if deps.Tokens == nil {
		return nil, fault.Classify(fmt.Errorf("no token balance reader for %s", call.Token.Hex()))
	}
	held, err := deps.Tokens.TokenBalance(r.ctx, call.Token, from)
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("token balance: %w", err))
	}
	if held.Cmp(call.Spend) < 0 {
		return nil, fault.Classify(fmt.Errorf("%w: have %s of token %s, need %s", fault.ErrInsufficientBalance, held, call.Token.Hex(), call.Spend))
	}
	return balance, nil
}

// maxCost is the most a transaction can debit: value plus gas limit at price
func maxCost(value *big.Int, gasLimit uint64, gasPrice *big.Int) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	if value != nil {
		cost.Add(cost, value)
	}
	return cost
}

// prepare fetches nonce and chain id, then signs the transaction
func (r *run) prepare(from common.Address, call Call, gasLimit uint64, gasPrice *big.Int) (*types.Transaction, *fault.Error) {
	chain := r.e.deps.Chain
	nonce, err := chain.PendingNonceAt(r.ctx, from)
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("pending nonce: %w", err))
	}
	chainID, err := chain.ChainID(r.ctx)
	if err != nil {
		return nil, fault.Classify(fmt.Errorf("chain id: %w", err))
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &call.To,
		Value:    value,
		Data:     call.Data,
	})
	signed, err := r.e.deps.Signer.SignTx(tx, chainID)
	if err != nil {
		return nil, &fault.Error{Kind: fault.SignerUnavailable, Message: "signing failed", Raw: err.Error(), Err: err}
	}
	return signed, nil
}

// await polls for the receipt until the wait budget or request deadline ends
func (r *run) await(hash common.Hash) (*types.Receipt, error) {
	e := r.e
	ctx, cancel := context.WithTimeout(r.ctx, e.cfg.WaitBudget)
	defer cancel()
	if r.req.Deadline != nil {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, *r.req.Deadline)
		defer cancelDeadline()
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.deps.Chain.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if e.confirmed(ctx, receipt) {
				return receipt, nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			logrus.WithFields(telemetry.Fields(r.ctx, logrus.Fields{
				"provider": e.cfg.Provider,
				"tx_hash":  hash.Hex(),
				"error":    err,
			})).Debug("Receipt poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("awaiting receipt for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// confirmed reports whether the receipt has the configured depth
func (e *Executor) confirmed(ctx context.Context, receipt *types.Receipt) bool {
	if e.cfg.Confirmations <= 1 || receipt.BlockNumber == nil {
		return true
	}
	head, err := e.deps.Chain.BlockNumber(ctx)
	if err != nil {
		return false
	}
	included := receipt.BlockNumber.Uint64()
	return head >= included && head-included+1 >= e.cfg.Confirmations
}

// BufferedGas applies a proportional safety margin to a gas estimate using
// integer arithmetic, rounding down.
func BufferedGas(estimate, percent uint64) uint64 {
	buffered := new(big.Int).SetUint64(estimate)
	buffered.Mul(buffered, new(big.Int).SetUint64(100+percent))
	buffered.Div(buffered, big.NewInt(100))
	if !buffered.IsUint64() {
		return ^uint64(0)
	}
	return buffered.Uint64()
}

// submissionStatus maps a classified send failure to a terminal state.
// Anything but a definite rejection leaves the final state unknown.
func submissionStatus(kind fault.Kind) model.Status {
	switch kind {
	case fault.InsufficientBalance, fault.Reverted:
		return model.StatusReverted
	case fault.SignerUnavailable:
		return model.StatusRejected
	}
	return model.StatusTimedOut
}

// settle builds the terminal outcome for an included transaction
func settle(rec Record, receipt *types.Receipt, at time.Time) model.ExecutionOutcome {
	details := model.Details{
		GasEstimated: rec.GasEstimated,
		GasLimit:     rec.GasLimit,
		GasUsed:      receipt.GasUsed,
		Logs:         len(receipt.Logs),
		Provenance:   rec.Provenance,
	}
	if receipt.BlockNumber != nil {
		details.BlockNumber = receipt.BlockNumber.Uint64()
	}

	out := model.ExecutionOutcome{
		ExecutionID: rec.ExecutionID,
		TxHash:      rec.TxHash,
		CompletedAt: at.UTC(),
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		details.PotentialPayout = rec.PotentialPayout
		out.Success = true
		out.Status = model.StatusConfirmed
		out.Message = "transaction confirmed"
	} else {
		ferr := fault.Classify(fault.ErrReceiptFailed)
		details.ErrorKind = string(ferr.Kind)
		details.Error = ferr.Raw
		out.Status = model.StatusReverted
		out.Message = fmt.Sprintf("transaction reverted in block %d", details.BlockNumber)
	}
	out.Details = details
	return out
}
