// Package errkind defines the error taxonomy shared across the orchestrator.
//
// Components wrap a sentinel with context via fmt.Errorf("%w: ...", ...);
// callers recover the Kind with errors.Is against the sentinels, or with Of
// for logging/metrics.
package errkind

import "errors"

// Kind categorizes a failure by how callers should react to it, not by its
// Go type.
type Kind string

const (
	KindValidation           Kind = "ValidationError"
	KindCapacityExceeded     Kind = "CapacityExceeded"
	KindIllegalTransition    Kind = "IllegalTransition"
	KindNotFound             Kind = "NotFound"
	KindInsufficientFunds    Kind = "InsufficientFunds"
	KindRPCFailure           Kind = "RPCFailure"
	KindChainRejection       Kind = "ChainRejection"
	KindSecretNotFound       Kind = "SecretNotFound"
	KindSecretExpired        Kind = "SecretExpired"
	KindSecretAlreadyUsed    Kind = "SecretAlreadyUsed"
	KindWriteUnavailable     Kind = "WriteOperationsUnavailable"
	KindOperationTimeout     Kind = "OperationTimeout"
	KindInternal             Kind = "Internal"
)

// Sentinel errors, one per Kind, wrapped by callers with fmt.Errorf("%w: ...").
var (
	ErrValidation        = errors.New(string(KindValidation))
	ErrCapacityExceeded  = errors.New(string(KindCapacityExceeded))
	ErrIllegalTransition = errors.New(string(KindIllegalTransition))
	ErrNotFound          = errors.New(string(KindNotFound))
	ErrInsufficientFunds = errors.New(string(KindInsufficientFunds))
	ErrRPCFailure        = errors.New(string(KindRPCFailure))
	ErrChainRejection    = errors.New(string(KindChainRejection))
	ErrSecretNotFound    = errors.New(string(KindSecretNotFound))
	ErrSecretExpired     = errors.New(string(KindSecretExpired))
	ErrSecretAlreadyUsed = errors.New(string(KindSecretAlreadyUsed))
	ErrWriteUnavailable  = errors.New(string(KindWriteUnavailable))
	ErrOperationTimeout  = errors.New(string(KindOperationTimeout))
	ErrInternal          = errors.New(string(KindInternal))
)

var sentinels = map[Kind]error{
	KindValidation:        ErrValidation,
	KindCapacityExceeded:  ErrCapacityExceeded,
	KindIllegalTransition: ErrIllegalTransition,
	KindNotFound:          ErrNotFound,
	KindInsufficientFunds: ErrInsufficientFunds,
	KindRPCFailure:        ErrRPCFailure,
	KindChainRejection:    ErrChainRejection,
	KindSecretNotFound:    ErrSecretNotFound,
	KindSecretExpired:     ErrSecretExpired,
	KindSecretAlreadyUsed: ErrSecretAlreadyUsed,
	KindWriteUnavailable:  ErrWriteUnavailable,
	KindOperationTimeout:  ErrOperationTimeout,
	KindInternal:          ErrInternal,
}

// Of returns the Kind whose sentinel err wraps, or KindInternal if none match.
func Of(err error) Kind {
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// Retryable reports whether a Kind should be retried locally with back-off
// rather than surfaced immediately as a session failure.
func Retryable(k Kind) bool {
	return k == KindRPCFailure || k == KindOperationTimeout
}
