package kinnet

import (
	"github.com/pkg/errors"
	"github.com/stellar/go/txnbuild"
)

// WhitelistTransaction adds the account's signature to a transaction built
// and signed by someone else, so that the network charges it as if it came
// from a whitelisted account. envelope is base64 XDR and must carry its
// source signature for the configured network.
func (a *Account) WhitelistTransaction(envelope, networkPassphrase string) (string, error) {
	if networkPassphrase != a.cfg.NetworkPassphrase {
		return "", invalidParam("network passphrase", "does not match %q", a.cfg.NetworkPassphrase)
	}
	if err := VerifyEnvelopeBase64(envelope, networkPassphrase); err != nil {
		return "", err
	}

	generic, err := txnbuild.TransactionFromXDR(envelope)
	if err != nil {
		return "", invalidParam("envelope", "unable to parse transaction: %v", err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return "", invalidParam("envelope", "fee bump transactions can't be whitelisted")
	}

	full, err := a.keypair.Seed().full()
	if err != nil {
		return "", err
	}
	tx, err = tx.Sign(networkPassphrase, full)
	if err != nil {
		return "", errors.Wrap(err, "sign envelope")
	}
	a.channels.log.WithField("tx", txHashOrEmpty(tx, networkPassphrase)).Debug("whitelisted transaction")
	return tx.Base64()
}

// txHashOrEmpty returns the hex hash of tx, or "" if it can't be hashed.
func txHashOrEmpty(tx *txnbuild.Transaction, passphrase string) string {
	h, err := tx.HashHex(passphrase)
	if err != nil {
		return ""
	}
	return h
}
