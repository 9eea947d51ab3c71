// Package fault maps low-level failures to the gateway's closed error taxonomy.
//
// Classification only inspects structured signals (sentinel errors, typed
// errors, JSON-RPC error codes). Human readable text is never matched.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind is one member of the closed taxonomy.
type Kind string

const (
	ValidationFailed    Kind = "ValidationFailed"
	ProviderNotFound    Kind = "ProviderNotFound"
	SignerUnavailable   Kind = "SignerUnavailable"
	InsufficientBalance Kind = "InsufficientBalance"
	NetworkUnavailable  Kind = "NetworkUnavailable"
	Reverted            Kind = "Reverted"
	TimedOut            Kind = "TimedOut"
	Unknown             Kind = "Unknown"
)

// Sentinel signals raised inside the gateway.
var (
	ErrNoSigner            = errors.New("no signing capability configured")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReceiptFailed       = errors.New("transaction receipt reports failure")
)

// revertCode is the EIP-1474 JSON-RPC code for "execution reverted".
const revertCode = 3

// Error is a classified failure. Raw always carries the underlying message.
type Error struct {
	Kind    Kind
	Message string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	if e.Raw != "" && e.Raw != e.Message {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Raw)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, Raw: msg}
}

// Validation is shorthand for a ValidationFailed error.
func Validation(format string, args ...any) *Error {
	return New(ValidationFailed, format, args...)
}

// KindOf returns the kind of a classified error, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err was classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify maps err to the taxonomy. Rules apply in priority order:
// insufficient balance, network, revert, signer, timeout, unknown.
// A nil error classifies as nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	kind := Unknown
	switch {
	case isInsufficientBalance(err):
		kind = InsufficientBalance
	case isNetwork(err):
		kind = NetworkUnavailable
	case isRevert(err):
		kind = Reverted
	case errors.Is(err, ErrNoSigner):
		kind = SignerUnavailable
	case isTimeout(err):
		kind = TimedOut
	}

	return &Error{
		Kind:    kind,
		Message: messages[kind],
		Raw:     err.Error(),
		Err:     err,
	}
}

var messages = map[Kind]string{
	SignerUnavailable:   "no signing capability available",
	InsufficientBalance: "insufficient balance for operation",
	NetworkUnavailable:  "network error occurred",
	Reverted:            "operation rejected by contract",
	TimedOut:            "operation timed out",
	Unknown:             "unclassified failure",
}

func isInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, core.ErrInsufficientFunds) ||
		errors.Is(err, core.ErrInsufficientFundsForTransfer)
}

func isNetwork(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return !opErr.Timeout()
	}
	return false
}

func isRevert(err error) bool {
	if errors.Is(err, vm.ErrExecutionReverted) || errors.Is(err, ErrReceiptFailed) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
