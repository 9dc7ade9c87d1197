package kinnet

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/support/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// channelCreationFee is the fee reserve per created channel account.
var channelCreationFee = decimal.New(1, -5)

// BuildFunc appends operations to a transaction. Operations are sourced by
// the base account; the channel only pays the fee and provides the sequence
// number.
type BuildFunc func(tx *Tx)

// ChannelOptions selects the channels of a ChannelManager. At most one of
// ChannelSeeds and ChannelCount may be set; with neither, the base account
// is the only channel.
type ChannelOptions struct {
	// ChannelSeeds are secret seeds of channel accounts. Their accounts
	// must not exist yet.
	ChannelSeeds []string
	// ChannelCount channels are derived from the base seed.
	ChannelCount int
	// CreateChannels funds missing channel accounts from the base account.
	CreateChannels bool
	Logger         *log.Entry
}

type channel struct {
	index   int
	seed    SeedStr
	address AddressStr
	busy    bool
}

// ChannelManager submits transactions through a pool of channel accounts so
// that concurrent submissions never share a sequence number. Each channel
// carries at most one transaction at a time.
type ChannelManager struct {
	base   *Keypair
	ledger LedgerClient
	cfg    Config
	log    *log.Entry

	sem      *semaphore.Weighted
	mu       sync.Mutex
	channels []*channel

	// baseMu is held by every transaction sourced by the base account.
	// Code holding it never waits for a channel.
	baseMu sync.Mutex
}

// NewChannelManager creates the channel pool for base.
func NewChannelManager(ctx context.Context, base SeedStr, ledger LedgerClient, cfg Config, opts ChannelOptions) (*ChannelManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kp, err := KeypairFromSeed(base.SecureNoLogString())
	if err != nil {
		return nil, err
	}
	if opts.ChannelSeeds != nil && opts.ChannelCount != 0 {
		return nil, configErrorf("channel seeds and channel count are mutually exclusive")
	}
	if opts.ChannelCount < 0 {
		return nil, configErrorf("invalid channel count %d", opts.ChannelCount)
	}
	if opts.ChannelSeeds != nil && len(opts.ChannelSeeds) == 0 {
		return nil, configErrorf("empty channel seed list")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.DefaultLogger
	}
	m := &ChannelManager{
		base:   kp,
		ledger: ledger,
		cfg:    cfg,
		log:    logger.WithField("base", kp.Address().String()),
	}

	var seeds []SeedStr
	switch {
	case opts.ChannelSeeds != nil:
		seeds, err = m.explicitSeeds(ctx, opts.ChannelSeeds)
		if err != nil {
			return nil, err
		}
	case opts.ChannelCount > 0:
		seeds, err = DeriveChannelSeeds(base, opts.ChannelCount)
		if err != nil {
			return nil, err
		}
	default:
		if opts.CreateChannels {
			return nil, configErrorf("there are no channels to create")
		}
		seeds = []SeedStr{kp.Seed()}
	}

	for i, s := range seeds {
		addr, err := s.Address()
		if err != nil {
			return nil, err
		}
		m.channels = append(m.channels, &channel{index: i, seed: s, address: addr})
	}
	m.sem = semaphore.NewWeighted(int64(len(m.channels)))

	if opts.CreateChannels {
		if err := m.createChannels(ctx); err != nil {
			return nil, err
		}
	}

	m.log.WithField("channels", len(m.channels)).Debug("channel manager ready")
	return m, nil
}

func (m *ChannelManager) explicitSeeds(ctx context.Context, raw []string) ([]SeedStr, error) {
	seeds := make([]SeedStr, len(raw))
	addrs := make([]AddressStr, len(raw))
	seen := make(map[AddressStr]bool, len(raw))
	for i, r := range raw {
		s, err := NewSeedStr(r)
		if err != nil {
			return nil, &ValidationError{Field: "channel seed", Reason: "invalid channel key", Err: ErrInvalidKey}
		}
		addr, err := s.Address()
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			return nil, configErrorf("duplicate channel %s", addr)
		}
		seen[addr] = true
		seeds[i], addrs[i] = s, addr
	}

	exists, err := accountsExist(ctx, m.ledger, addrs)
	if err != nil {
		return nil, err
	}
	for i, e := range exists {
		if e {
			return nil, errors.Wrapf(ErrAccountExists, "channel %s", addrs[i])
		}
	}
	return seeds, nil
}

// accountsExist checks all addrs concurrently.
func accountsExist(ctx context.Context, ledger LedgerClient, addrs []AddressStr) ([]bool, error) {
	exists := make([]bool, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			e, err := ledger.AccountExists(gctx, addr)
			if err != nil {
				return errors.Wrapf(err, "check account %s", addr)
			}
			exists[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return exists, nil
}

// createChannels funds every channel account that doesn't exist yet.
func (m *ChannelManager) createChannels(ctx context.Context) error {
	addrs := m.Addresses()
	exists, err := accountsExist(ctx, m.ledger, addrs)
	if err != nil {
		return err
	}
	var missing []AddressStr
	for i, e := range exists {
		if !e {
			missing = append(missing, addrs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}

	balances, err := m.ledger.AccountBalances(ctx, m.base.Address())
	if err != nil {
		return err
	}
	need := m.cfg.minBalance().Add(channelCreationFee).Mul(decimal.New(int64(len(m.channels)+1), 0))
	if balances[NativeCode].Cmp(need) < 0 {
		return errors.Wrapf(ErrLowBalance, "base account needs %s %s to create %d channels", FormatAmount(need), NativeCode, len(m.channels))
	}

	for start := 0; start < len(missing); start += MaxOperations {
		end := start + MaxOperations
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		_, err := m.submitFromBase(ctx, func(tx *Tx) {
			for _, addr := range batch {
				tx.AddCreateAccountOp(addr, m.cfg.MinAccountBalance)
			}
		})
		if errors.Is(err, ErrAccountExists) {
			// someone else created one of them; go one by one
			err = m.createEach(ctx, batch)
		}
		if err != nil {
			return errors.Wrap(err, "create channels")
		}
		m.log.WithField("count", len(batch)).Info("created channel accounts")
	}
	return nil
}

func (m *ChannelManager) createEach(ctx context.Context, addrs []AddressStr) error {
	for _, addr := range addrs {
		addr := addr
		_, err := m.submitFromBase(ctx, func(tx *Tx) {
			tx.AddCreateAccountOp(addr, m.cfg.MinAccountBalance)
		})
		if err != nil && !errors.Is(err, ErrAccountExists) {
			return err
		}
	}
	return nil
}

// Size returns the number of channels.
func (m *ChannelManager) Size() int { return len(m.channels) }

// Idle returns the number of channels not carrying a transaction.
func (m *ChannelManager) Idle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, ch := range m.channels {
		if !ch.busy {
			n++
		}
	}
	return n
}

// Addresses returns the channel addresses in index order.
func (m *ChannelManager) Addresses() []AddressStr {
	addrs := make([]AddressStr, len(m.channels))
	for i, ch := range m.channels {
		addrs[i] = ch.address
	}
	return addrs
}

// BaseAddress returns the address of the base account.
func (m *ChannelManager) BaseAddress() AddressStr { return m.base.Address() }

// acquire blocks until a channel is idle, ctx is done or the acquire
// timeout passes. Nothing changes on failure.
func (m *ChannelManager) acquire(ctx context.Context) (*channel, error) {
	if d := m.cfg.AcquireTimeout.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(ErrResourceExhausted, err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if !ch.busy {
			ch.busy = true
			return ch, nil
		}
	}
	// the semaphore admits at most len(channels) holders
	m.sem.Release(1)
	return nil, ErrResourceExhausted
}

func (m *ChannelManager) release(ch *channel) {
	m.mu.Lock()
	ch.busy = false
	m.mu.Unlock()
	m.sem.Release(1)
}

// Submit runs build on a transaction from an idle channel, signs it with
// the channel and the base account and submits it. An underfunded channel
// is topped up from the base account once and the transaction retried
// once. It returns the transaction hash.
func (m *ChannelManager) Submit(ctx context.Context, build BuildFunc, memo string) (string, error) {
	if build == nil {
		return "", invalidParam("build", "nil build function")
	}
	ch, err := m.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer m.release(ch)

	onBase := ch.address == m.base.Address()
	if onBase {
		m.baseMu.Lock()
		defer m.baseMu.Unlock()
	}

	res, err := m.submitOnChannel(ctx, ch, build, memo)
	if err == nil {
		return res.Hash, nil
	}
	if !errors.Is(err, ErrChannelUnderfunded) {
		return "", classify(err)
	}
	if onBase {
		return "", errors.Wrap(ErrLowBalance, "base account can't pay the fee")
	}

	m.log.WithFields(log.F{"channel": ch.address.String(), "index": ch.index}).Info("channel underfunded, topping up")
	if err := m.topUp(ctx, ch); err != nil {
		return "", classify(errors.Wrapf(err, "top up channel %s", ch.address))
	}

	res, err = m.submitOnChannel(ctx, ch, build, memo)
	if err != nil {
		if errors.Is(err, ErrChannelUnderfunded) {
			return "", errors.Wrapf(ErrLowBalance, "channel %s underfunded after top up", ch.address)
		}
		return "", classify(err)
	}
	return res.Hash, nil
}

func (m *ChannelManager) newTx(ctx context.Context, source AddressStr) *Tx {
	tx := NewBaseTx(source, LedgerSequenceProvider{Ctx: ctx, Ledger: m.ledger}, m.cfg.BaseFee, m.cfg.NetworkPassphrase)
	tx.AddTimeout(m.cfg.TxTimeout.Duration)
	return tx
}

func (m *ChannelManager) submitOnChannel(ctx context.Context, ch *channel, build BuildFunc, memo string) (SubmitResult, error) {
	tx := m.newTx(ctx, ch.address)
	tx.SetOperationSource(m.base.Address())
	build(tx)
	tx.AddMemoText(memo)
	sig, err := tx.Sign(ch.seed, m.base.Seed())
	if err != nil {
		return SubmitResult{}, err
	}
	m.log.WithFields(log.F{
		"channel": ch.address.String(),
		"index":   ch.index,
		"tx":      sig.TxHash,
		"seqno":   sig.Seqno,
	}).Debugf("submitting: %s", TxSummary(tx))
	return m.ledger.SubmitTransaction(ctx, sig.Signed)
}

// topUp sends MinAccountBalance from the base account to ch.
func (m *ChannelManager) topUp(ctx context.Context, ch *channel) error {
	res, err := m.submitFromBase(ctx, func(tx *Tx) {
		tx.AddPaymentOp(ch.address, NativeAsset(), m.cfg.MinAccountBalance)
	})
	if err != nil {
		return err
	}
	m.log.WithFields(log.F{"channel": ch.address.String(), "tx": res.Hash}).Info("channel topped up")
	return nil
}

// submitFromBase submits a transaction sourced and signed by the base
// account only, outside of the channel pool.
func (m *ChannelManager) submitFromBase(ctx context.Context, build BuildFunc) (SubmitResult, error) {
	m.baseMu.Lock()
	defer m.baseMu.Unlock()

	tx := m.newTx(ctx, m.base.Address())
	build(tx)
	tx.AddMemoText(m.cfg.MemoPrefix())
	sig, err := tx.Sign(m.base.Seed())
	if err != nil {
		return SubmitResult{}, err
	}
	m.log.WithField("tx", sig.TxHash).Debugf("submitting from base: %s", TxSummary(tx))
	res, err := m.ledger.SubmitTransaction(ctx, sig.Signed)
	if errors.Is(err, ErrChannelUnderfunded) {
		return res, errors.Wrap(ErrLowBalance, "base account can't pay the fee")
	}
	return res, err
}

// classify wraps errors that aren't part of the public error set in a
// TransactionFailedError.
func classify(err error) error {
	for _, known := range []error{ErrAccountNotFound, ErrAccountNotActivated, ErrAccountExists, ErrLowBalance, ErrResourceExhausted} {
		if errors.Is(err, known) {
			return err
		}
	}
	var verr *ValidationError
	var cerr *ConfigurationError
	var terr *TransactionFailedError
	if errors.As(err, &verr) || errors.As(err, &cerr) || errors.As(err, &terr) {
		return err
	}
	return &TransactionFailedError{Err: err}
}
