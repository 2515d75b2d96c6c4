package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshcash/meshcash/internal/dag"
	"github.com/meshcash/meshcash/internal/log"
	"github.com/meshcash/meshcash/internal/spendstore"
	"github.com/meshcash/meshcash/internal/storage"
	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/transfer"
	"github.com/meshcash/meshcash/pkg/types"
)

// Wallet operation errors.
var (
	ErrAlreadyRedeemed    = errors.New("transfer already redeemed")
	ErrIncompleteAncestry = errors.New("transfer ancestry incomplete")
	ErrBurntTransfer      = errors.New("transfer funded by a burnt spend")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrZeroRecipient      = errors.New("recipient key is empty")
)

// Local DB key prefixes. All values are JSON except the markers, which
// store a single byte.
const (
	notePrefix     = "note/"
	spentPrefix    = "spent/"
	redeemedPrefix = "redeemed/"
)

// Store submission retry policy.
const (
	putRetries = 3
	putBackoff = 250 * time.Millisecond
)

// HotWallet holds a main secret key in memory and coordinates payments
// against a spend store. All operations take an exclusive lock: the
// wallet is a strict single-writer, so two concurrent Sends can never
// consume the same note and burn it.
type HotWallet struct {
	key     *crypto.MainSecretKey
	mainPub crypto.MainPubkey
	store   spendstore.Store
	db      storage.DB
	crawler *dag.Crawler
	logger  zerolog.Logger

	mu sync.Mutex
}

// New creates a wallet around an unlocked main key. The db holds wallet
// state (notes, spent and redeemed markers, the send journal); the store
// is the shared spend ledger.
func New(key *crypto.MainSecretKey, store spendstore.Store, db storage.DB) *HotWallet {
	logger := log.Wallet
	return &HotWallet{
		key:     key,
		mainPub: key.MainPubkey(),
		store:   store,
		db:      db,
		crawler: dag.NewCrawler(store, dag.Config{}, logger),
		logger:  logger,
	}
}

// MainPubkey returns the wallet's public identity, shared with payers.
func (w *HotWallet) MainPubkey() crypto.MainPubkey {
	return w.mainPub
}

// Deposit stores cash notes owned by this wallet. Notes that do not
// belong to the wallet's key or carry no value are rejected.
func (w *HotWallet) Deposit(notes ...spend.CashNote) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range notes {
		if err := w.saveNote(&notes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Balance sums the value of all unspent notes.
func (w *HotWallet) Balance() (types.Amount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	notes, err := w.spendableNotes()
	if err != nil {
		return 0, err
	}
	var total types.Amount
	for _, n := range notes {
		sum, err := total.CheckedAdd(n.Value)
		if err != nil {
			return 0, err
		}
		total = sum
	}
	return total, nil
}

// Send pays amount to the holder of recipient. It selects notes, signs
// one spend per consumed note, marks the notes spent locally, submits
// the spends to the store and returns the encrypted transfer for the
// recipient. The local spent-marking happens before submission, so a
// crash can strand value in the journal but never double-spend a key.
func (w *HotWallet) Send(ctx context.Context, amount types.Amount, recipient crypto.MainPubkey) (*transfer.Transfer, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if recipient == (crypto.MainPubkey{}) {
		return nil, ErrZeroRecipient
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	notes, err := w.spendableNotes()
	if err != nil {
		return nil, err
	}
	sel, err := selectNotes(notes, amount)
	if err != nil {
		return nil, err
	}

	recipientIndex, err := crypto.RandomDerivationIndex()
	if err != nil {
		return nil, err
	}
	recipientKey, err := recipient.DeriveUniquePubkey(recipientIndex)
	if err != nil {
		return nil, fmt.Errorf("derive recipient key: %w", err)
	}

	var changeIndex crypto.DerivationIndex
	var changeKey crypto.UniquePubkey
	if sel.Change > 0 {
		changeIndex, err = crypto.RandomDerivationIndex()
		if err != nil {
			return nil, err
		}
		changeKey, err = w.mainPub.DeriveUniquePubkey(changeIndex)
		if err != nil {
			return nil, fmt.Errorf("derive change key: %w", err)
		}
	}

	// One spend per consumed note. Each note is consumed whole; its
	// value splits between the recipient's key and the change key.
	remaining := amount
	spends := make([]spend.SignedSpend, 0, len(sel.Notes))
	for i := range sel.Notes {
		n := &sel.Notes[i]
		contrib := n.Value
		if contrib > remaining {
			contrib = remaining
		}
		remaining -= contrib
		leftover := n.Value - contrib

		descendants := make(map[crypto.UniquePubkey]types.Amount, 2)
		if contrib > 0 {
			descendants[recipientKey] = contrib
		}
		if leftover > 0 {
			descendants[changeKey] = leftover
		}

		upk, err := n.Note.UniquePubkey()
		if err != nil {
			return nil, err
		}
		s, err := spend.BuildSpend(upk, n.Note.ParentSpends, descendants)
		if err != nil {
			return nil, fmt.Errorf("build spend for %s: %w", upk, err)
		}
		dk, err := n.Note.DerivedKey(w.key)
		if err != nil {
			return nil, err
		}
		signed, err := spend.Sign(s, dk)
		dk.Zero()
		if err != nil {
			return nil, fmt.Errorf("sign spend for %s: %w", upk, err)
		}
		spends = append(spends, *signed)
	}

	rec := &sendRecord{
		ID:             recipientKey.String(),
		State:          StatePrepared,
		CreatedAt:      time.Now().UTC(),
		Recipient:      recipient,
		RecipientIndex: recipientIndex,
		Amount:         amount.Nanos(),
		Spends:         spends,
	}
	if sel.Change > 0 {
		rec.ChangeIndex = changeIndex
		rec.Change = sel.Change.Nanos()
	}
	if err := w.putJournal(rec); err != nil {
		return nil, err
	}

	return w.finalizeSend(ctx, rec)
}

// finalizeSend drives a journaled payment from its current state to
// StateNotified. Safe to re-run: spent markers and store puts are
// idempotent for identical records.
func (w *HotWallet) finalizeSend(ctx context.Context, rec *sendRecord) (*transfer.Transfer, error) {
	if rec.State < StateCommitted {
		// Mark consumed keys spent before anything leaves the wallet,
		// so a re-run of Send cannot build a second, conflicting spend.
		for i := range rec.Spends {
			upk := rec.Spends[i].Spend.UniquePubkey
			if err := w.db.Put([]byte(spentPrefix+upk.String()), []byte{1}); err != nil {
				return nil, fmt.Errorf("mark note spent: %w", err)
			}
		}
		rec.State = StateCommitted
		if err := w.putJournal(rec); err != nil {
			return nil, err
		}
	}

	for i := range rec.Spends {
		s := &rec.Spends[i]
		if err := w.putWithRetry(ctx, s.Address(), s); err != nil {
			return nil, fmt.Errorf("submit spend %s: %w", s.Address(), err)
		}
	}

	if rec.Change > 0 {
		changeKey, err := w.mainPub.DeriveUniquePubkey(rec.ChangeIndex)
		if err != nil {
			return nil, fmt.Errorf("derive change key: %w", err)
		}
		changeNote := spend.CashNote{
			MainPubkey:      w.mainPub,
			DerivationIndex: rec.ChangeIndex,
			ParentSpends:    fundingSpends(rec.Spends, changeKey),
		}
		if err := w.saveNote(&changeNote); err != nil {
			return nil, fmt.Errorf("deposit change: %w", err)
		}
	}

	recipientKey, err := rec.Recipient.DeriveUniquePubkey(rec.RecipientIndex)
	if err != nil {
		return nil, fmt.Errorf("derive recipient key: %w", err)
	}
	funding := fundingSpends(rec.Spends, recipientKey)
	parentAddrs := make([]types.SpendAddress, 0, len(funding))
	for i := range funding {
		parentAddrs = append(parentAddrs, funding[i].Address())
	}
	t, err := transfer.Encode([]transfer.CashNoteRedemption{{
		DerivationIndex:      rec.RecipientIndex,
		ParentSpendAddresses: parentAddrs,
	}}, rec.Recipient)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	rec.State = StateNotified
	if err := w.putJournal(rec); err != nil {
		return nil, err
	}

	w.logger.Info().
		Str("recipient_key", rec.ID).
		Uint64("amount", rec.Amount).
		Int("spends", len(rec.Spends)).
		Msg("payment committed")
	return t, nil
}

// Resume completes payments interrupted before reaching StateNotified
// and returns their rebuilt transfers so the caller can re-deliver them.
func (w *HotWallet) Resume(ctx context.Context) ([]*transfer.Transfer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, err := w.pendingSends()
	if err != nil {
		return nil, err
	}
	transfers := make([]*transfer.Transfer, 0, len(pending))
	for _, rec := range pending {
		t, err := w.finalizeSend(ctx, rec)
		if err != nil {
			return transfers, fmt.Errorf("resume payment %s: %w", rec.ID, err)
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

// Receive claims a transfer: it decrypts the redemptions, fetches and
// audits the funding spends, and immediately reissues each received key
// to a fresh one so the sender, who knows the derivation index, can
// never race the wallet on it. Returns the total value credited.
func (w *HotWallet) Receive(ctx context.Context, t *transfer.Transfer) (types.Amount, error) {
	redemptions, err := transfer.Decode(t, w.key)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var total types.Amount
	for _, r := range redemptions {
		value, err := w.redeem(ctx, r)
		if err != nil {
			return total, err
		}
		sum, err := total.CheckedAdd(value)
		if err != nil {
			return total, err
		}
		total = sum
	}
	return total, nil
}

func (w *HotWallet) redeem(ctx context.Context, r transfer.CashNoteRedemption) (types.Amount, error) {
	upk, err := w.mainPub.DeriveUniquePubkey(r.DerivationIndex)
	if err != nil {
		return 0, fmt.Errorf("derive received key: %w", err)
	}
	done, err := w.db.Has([]byte(redeemedPrefix + upk.String()))
	if err != nil {
		return 0, err
	}
	if done {
		return 0, fmt.Errorf("%w: key %s", ErrAlreadyRedeemed, upk)
	}
	if len(r.ParentSpendAddresses) == 0 {
		return 0, fmt.Errorf("%w: no parent spends", ErrIncompleteAncestry)
	}

	// Fetch the funding spends and audit each one's full ancestry back
	// to genesis before trusting its value.
	var parents []spend.SignedSpend
	for _, addr := range r.ParentSpendAddresses {
		g, err := w.crawler.Crawl(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("audit parent %s: %w", addr, err)
		}
		switch status := g.Status(addr); status {
		case dag.StatusValid:
		case dag.StatusBurnt:
			return 0, fmt.Errorf("%w: parent %s", ErrBurntTransfer, addr)
		default:
			return 0, fmt.Errorf("%w: parent %s is %s", ErrIncompleteAncestry, addr, status)
		}
		records := g.Records(addr)
		if len(records) != 1 {
			return 0, fmt.Errorf("%w: parent %s has %d records", ErrIncompleteAncestry, addr, len(records))
		}
		// The sender names the parent addresses; never trust a record
		// that does not live at the address it was fetched from.
		if records[0].Address() != addr {
			return 0, fmt.Errorf("%w: parent record mis-addressed at %s", ErrIncompleteAncestry, addr)
		}
		parents = append(parents, records[0])
	}

	note := spend.CashNote{
		MainPubkey:      w.mainPub,
		DerivationIndex: r.DerivationIndex,
		ParentSpends:    parents,
	}
	value, err := note.Value()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncompleteAncestry, err)
	}

	// Reissue to a key only this wallet can derive. The received note is
	// spent in the same motion and never becomes spendable state.
	freshIndex, err := crypto.RandomDerivationIndex()
	if err != nil {
		return 0, err
	}
	freshKey, err := w.mainPub.DeriveUniquePubkey(freshIndex)
	if err != nil {
		return 0, fmt.Errorf("derive reissue key: %w", err)
	}
	s, err := spend.BuildSpend(upk, parents, map[crypto.UniquePubkey]types.Amount{freshKey: value})
	if err != nil {
		return 0, fmt.Errorf("build reissue spend: %w", err)
	}
	dk, err := note.DerivedKey(w.key)
	if err != nil {
		return 0, err
	}
	signed, err := spend.Sign(s, dk)
	dk.Zero()
	if err != nil {
		return 0, fmt.Errorf("sign reissue spend: %w", err)
	}
	if err := w.putWithRetry(ctx, signed.Address(), signed); err != nil {
		return 0, fmt.Errorf("submit reissue spend: %w", err)
	}

	if err := w.db.Put([]byte(redeemedPrefix+upk.String()), []byte{1}); err != nil {
		return 0, err
	}
	fresh := spend.CashNote{
		MainPubkey:      w.mainPub,
		DerivationIndex: freshIndex,
		ParentSpends:    []spend.SignedSpend{*signed},
	}
	if err := w.saveNote(&fresh); err != nil {
		return 0, err
	}

	w.logger.Info().
		Stringer("received_key", upk).
		Stringer("amount", value).
		Msg("transfer redeemed")
	return value, nil
}

// saveNote validates ownership and value, then persists the note keyed
// by its unique pubkey. Idempotent for identical notes.
func (w *HotWallet) saveNote(n *spend.CashNote) error {
	if n.MainPubkey != w.mainPub {
		return spend.ErrForeignNote
	}
	upk, err := n.UniquePubkey()
	if err != nil {
		return err
	}
	if _, err := n.Value(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal cash note: %w", err)
	}
	return w.db.Put([]byte(notePrefix+upk.String()), data)
}

// spendableNotes loads all stored notes without a spent marker. Caller
// must hold w.mu.
func (w *HotWallet) spendableNotes() ([]noteCandidate, error) {
	var out []noteCandidate
	err := w.db.ForEach([]byte(notePrefix), func(key, value []byte) error {
		var n spend.CashNote
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("parse cash note %q: %w", key, err)
		}
		upk, err := n.UniquePubkey()
		if err != nil {
			return err
		}
		spent, err := w.db.Has([]byte(spentPrefix + upk.String()))
		if err != nil {
			return err
		}
		if spent {
			return nil
		}
		v, err := n.Value()
		if err != nil {
			return err
		}
		out = append(out, noteCandidate{Note: n, Value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// putWithRetry submits one record with bounded retries and doubling
// backoff, honoring ctx between attempts.
func (w *HotWallet) putWithRetry(ctx context.Context, addr types.SpendAddress, record *spend.SignedSpend) error {
	backoff := putBackoff
	var lastErr error
	for attempt := 0; attempt < putRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if lastErr = w.store.Put(ctx, addr, record); lastErr == nil {
			return nil
		}
		w.logger.Warn().
			Stringer("address", addr).
			Int("attempt", attempt+1).
			Err(lastErr).
			Msg("spend submission failed")
	}
	return lastErr
}

// fundingSpends returns the spends that allocate value to key.
func fundingSpends(spends []spend.SignedSpend, key crypto.UniquePubkey) []spend.SignedSpend {
	var out []spend.SignedSpend
	for i := range spends {
		if _, ok := spends[i].Spend.OutputAmount(key); ok {
			out = append(out, spends[i])
		}
	}
	return out
}
