package kinnet

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotActivated = errors.New("account not activated for asset")
	ErrAccountExists       = errors.New("account already exists")
	ErrLowBalance          = errors.New("low balance")
	ErrResourceExhausted   = errors.New("no channel available")
	ErrAddressNotSeed      = errors.New("string provided is an address not a seed")
	ErrSeedNotAddress      = errors.New("string provided is a seed not an address")
	ErrUnknownKeypairType  = errors.New("unknown keypair type")
	ErrInvalidKey          = errors.New("invalid key")

	// ErrChannelUnderfunded is reported by a LedgerClient when the
	// transaction source can't pay the fee. Submit turns it into a top-up
	// and never returns it.
	ErrChannelUnderfunded = errors.New("transaction source account underfunded")

	ErrTxOpFull        = errors.New("transaction has the maximum number of operations")
	ErrMemoExists      = errors.New("transaction already has a memo")
	ErrNoOps           = errors.New("transaction has no operations")
	ErrTimeboundsExist = errors.New("transaction already has time bounds")
)

// ValidationError is returned when an input is malformed. It is always
// returned before any ledger call is made.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// Error implements error for ValidationError.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Field)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalidKey(field string, err error) error {
	if err == ErrAddressNotSeed || err == ErrSeedNotAddress {
		return &ValidationError{Field: field, Reason: err.Error(), Err: ErrInvalidKey}
	}
	return &ValidationError{Field: field, Err: errors.Wrap(ErrInvalidKey, err.Error())}
}

func invalidParam(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError is returned for conflicting or invalid construction
// parameters.
type ConfigurationError struct {
	Reason string
}

// Error implements error for ConfigurationError.
func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// TransactionFailedError is a ledger rejection that doesn't map to one of
// the other errors, or a transport failure while submitting.
type TransactionFailedError struct {
	TxCode  string
	OpCodes []string
	Err     error
}

// Error implements error for TransactionFailedError.
func (e *TransactionFailedError) Error() string {
	var b strings.Builder
	b.WriteString("transaction failed")
	if e.TxCode != "" {
		b.WriteString(": " + e.TxCode)
	}
	if len(e.OpCodes) > 0 {
		b.WriteString(" [" + strings.Join(e.OpCodes, ", ") + "]")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }
