package kinnet

import (
	"crypto/sha256"
	"strconv"

	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
)

// NewKeyPair creates a new random stellar keypair.
func NewKeyPair() (*keypair.Full, error) {
	return keypair.Random()
}

// SeedStr is a string representation of a private stellar key.
type SeedStr string

// AddressStr is a string representation of a public stellar key.
type AddressStr string

// NewSeedStr ensures that s is a valid stellar seed.
func NewSeedStr(s string) (SeedStr, error) {
	// parse s to make sure it is a valid seed
	kp, err := keypair.Parse(s)
	if err != nil {
		return "", invalidKey("seed", err)
	}

	switch kp.(type) {
	case *keypair.Full:
		return SeedStr(s), nil
	case *keypair.FromAddress:
		return "", invalidKey("seed", ErrAddressNotSeed)
	}

	return "", invalidKey("seed", ErrUnknownKeypairType)
}

func (s SeedStr) String() string {
	return "DONOTLOGDONOTLOGDONOTLOGDONOTLOGDONOTLOGDONOTLOGDONOTLOG"
}

// SecureNoLogString returns a native string representation of SeedStr.
// It should not be logged or persisted anywhere.
func (s SeedStr) SecureNoLogString() string {
	return string(s)
}

// Address returns the public address for a seed.
func (s SeedStr) Address() (AddressStr, error) {
	kp, err := keypair.Parse(s.SecureNoLogString())
	if err != nil {
		return "", invalidKey("seed", err)
	}
	return AddressStr(kp.Address()), nil
}

func (s SeedStr) full() (*keypair.Full, error) {
	kp, err := keypair.ParseFull(s.SecureNoLogString())
	if err != nil {
		return nil, invalidKey("seed", err)
	}
	return kp, nil
}

// NewAddressStr ensures that s is a valid stellar address.
func NewAddressStr(s string) (AddressStr, error) {
	// parse s to make sure it is a valid address
	kp, err := keypair.Parse(s)
	if err != nil {
		return "", invalidKey("address", err)
	}

	switch kp.(type) {
	case *keypair.FromAddress:
		return AddressStr(s), nil
	case *keypair.Full:
		return "", invalidKey("address", ErrSeedNotAddress)
	}

	return "", invalidKey("address", ErrUnknownKeypairType)
}

func (s AddressStr) String() string { return string(s) }

// AccountID converts an AddressStr into an xdr.AccountId.
func (s AddressStr) AccountID() (acctID xdr.AccountId, err error) {
	err = acctID.SetAddress(s.String())
	return acctID, err
}

// Keypair is an immutable seed/address pair. A Keypair made with
// KeypairFromAddress has no seed and can't sign.
type Keypair struct {
	seed    SeedStr
	address AddressStr
}

// KeypairFromSeed validates seed and derives its address.
func KeypairFromSeed(seed string) (*Keypair, error) {
	s, err := NewSeedStr(seed)
	if err != nil {
		return nil, err
	}
	addr, err := s.Address()
	if err != nil {
		return nil, err
	}
	return &Keypair{seed: s, address: addr}, nil
}

// KeypairFromAddress returns a public-only Keypair.
func KeypairFromAddress(address string) (*Keypair, error) {
	addr, err := NewAddressStr(address)
	if err != nil {
		return nil, err
	}
	return &Keypair{address: addr}, nil
}

// Address returns the public address.
func (k *Keypair) Address() AddressStr { return k.address }

// Seed returns the secret seed, or "" for a public-only Keypair.
func (k *Keypair) Seed() SeedStr { return k.seed }

// CanSign is true when the Keypair carries a seed.
func (k *Keypair) CanSign() bool { return k.seed != "" }

// AddressFromSeed returns the public address for seed.
func AddressFromSeed(seed SeedStr) (AddressStr, error) {
	return seed.Address()
}

// DeriveChannelSeed deterministically derives the seed of channel index from
// master. The raw ed25519 seed is sha256(master || decimal(index)).
func DeriveChannelSeed(master SeedStr, index int) (SeedStr, error) {
	if _, err := master.full(); err != nil {
		return "", err
	}
	if index < 0 {
		return "", errors.Errorf("invalid channel index %d", index)
	}
	raw := sha256.Sum256([]byte(master.SecureNoLogString() + strconv.Itoa(index)))
	kp, err := keypair.FromRawSeed(raw)
	if err != nil {
		return "", errors.Wrap(err, "derive channel seed")
	}
	return SeedStr(kp.Seed()), nil
}

// DeriveChannelSeeds returns the first n channel seeds for master.
func DeriveChannelSeeds(master SeedStr, n int) ([]SeedStr, error) {
	seeds := make([]SeedStr, n)
	for i := 0; i < n; i++ {
		s, err := DeriveChannelSeed(master, i)
		if err != nil {
			return nil, err
		}
		seeds[i] = s
	}
	return seeds, nil
}
