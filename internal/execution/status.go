package execution

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
)

// Status re-derives the state of a previously submitted execution from the
// chain. Once a receipt has been observed the settled outcome is stored, so
// later lookups return it unchanged.
func (e *Executor) Status(ctx context.Context, executionID string) (model.ExecutionOutcome, error) {
	rec, ok, err := e.deps.Store.Get(ctx, executionID)
	if err != nil {
		return model.ExecutionOutcome{}, fault.Classify(err)
	}
	if !ok || rec.Provider != e.cfg.Provider {
		return e.lookup(executionID, "", model.StatusNotFound, "execution not found"), nil
	}
	if rec.Settled != nil {
		return *rec.Settled, nil
	}

	hash := common.HexToHash(rec.TxHash)
	receipt, err := e.deps.Chain.TransactionReceipt(ctx, hash)
	switch {
	case err == nil && receipt != nil:
		if !e.confirmed(ctx, receipt) {
			return e.lookup(rec.ExecutionID, rec.TxHash, model.StatusPending, "transaction included, awaiting confirmations"), nil
		}
	case err == nil || errors.Is(err, ethereum.NotFound):
		return e.pendingOrMissing(ctx, rec, hash)
	default:
		return model.ExecutionOutcome{}, fault.Classify(err)
	}

	outcome := settle(rec, receipt, e.now())
	rec.Settled = &outcome
	if err := e.deps.Store.Save(ctx, rec); err != nil {
		logrus.WithFields(telemetry.Fields(ctx, logrus.Fields{
			"provider":     e.cfg.Provider,
			"execution_id": rec.ExecutionID,
			"error":        err,
		})).Error("Failed to persist settled outcome")
		return outcome, nil
	}

	// another lookup may have settled first; return the stored result
	if stored, ok, err := e.deps.Store.Get(ctx, rec.ExecutionID); err == nil && ok && stored.Settled != nil {
		return *stored.Settled, nil
	}
	return outcome, nil
}

func (e *Executor) pendingOrMissing(ctx context.Context, rec Record, hash common.Hash) (model.ExecutionOutcome, error) {
	_, _, err := e.deps.Chain.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		return e.lookup(rec.ExecutionID, rec.TxHash, model.StatusPending, "transaction pending"), nil
	case errors.Is(err, ethereum.NotFound):
		return e.lookup(rec.ExecutionID, rec.TxHash, model.StatusNotFound, "transaction not found on chain"), nil
	}
	return model.ExecutionOutcome{}, fault.Classify(err)
}

func (e *Executor) lookup(executionID, txHash string, status model.Status, msg string) model.ExecutionOutcome {
	return model.ExecutionOutcome{
		ExecutionID: executionID,
		TxHash:      txHash,
		Status:      status,
		Message:     msg,
		CompletedAt: e.now().UTC(),
	}
}
