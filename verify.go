package kinnet

import (
	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	snetwork "github.com/stellar/go/network"
	"github.com/stellar/go/xdr"
)

// VerifyEnvelope verifies that there is a SourceAccount signature in the
// envelope for the network identified by passphrase.
func VerifyEnvelope(txEnv xdr.TransactionEnvelope, passphrase string) error {
	sourceMuxedAccount := txEnv.SourceAccount()
	sourceAccount := sourceMuxedAccount.ToAccountId()
	kp, err := keypair.Parse(sourceAccount.Address())
	if err != nil {
		return err
	}
	hash, err := snetwork.HashTransactionInEnvelope(txEnv, passphrase)
	if err != nil {
		return errors.Wrap(err, "hash envelope")
	}

	var found bool
	for _, sig := range txEnv.Signatures() {
		if sig.Hint != kp.Hint() {
			continue
		}
		if err := kp.Verify(hash[:], sig.Signature); err != nil {
			return errors.Wrap(err, "bad source signature")
		}
		found = true
	}

	if !found {
		return errors.New("no signature found for source account")
	}

	return nil
}

// VerifyEnvelopeBase64 is VerifyEnvelope for a base64 XDR envelope.
func VerifyEnvelopeBase64(envelope, passphrase string) error {
	var txEnv xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(envelope, &txEnv); err != nil {
		return invalidParam("envelope", "unable to unpack envelope: %v", err)
	}
	return VerifyEnvelope(txEnv, passphrase)
}
