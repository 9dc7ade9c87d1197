package kinnet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stellar/go/xdr"
)

// SequenceProvider looks up the current sequence number of an account.
type SequenceProvider interface {
	// Look up a sequence by address
	SequenceForAccount(aid string) (xdr.SequenceNumber, error)
}

// LedgerSequenceProvider implements SequenceProvider with a LedgerClient.
type LedgerSequenceProvider struct {
	Ctx    context.Context
	Ledger LedgerClient
}

// SequenceForAccount implements SequenceProvider.
func (p LedgerSequenceProvider) SequenceForAccount(accountID string) (xdr.SequenceNumber, error) {
	ctx := p.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	seq, err := p.Ledger.AccountSequence(ctx, AddressStr(accountID))
	if err != nil {
		return 0, errors.Wrap(err, "load sequence failed")
	}
	return xdr.SequenceNumber(seq), nil
}
