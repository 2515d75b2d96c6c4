package wallet

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/spend"
)

// TransferState tracks the lifecycle of an outgoing payment. States only
// advance; a crash leaves the journal entry at its last durable state and
// Resume picks it up from there.
type TransferState int

const (
	// StatePrepared: spends are built and signed, nothing published yet.
	StatePrepared TransferState = iota + 1
	// StateCommitted: consumed notes are marked spent locally and the
	// signed spends have been submitted to the store.
	StateCommitted
	// StateNotified: the encrypted transfer has been produced for the
	// recipient.
	StateNotified
)

func (s TransferState) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateCommitted:
		return "committed"
	case StateNotified:
		return "notified"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// sendRecord is a journal entry for one outgoing payment. It carries enough
// to re-submit the spends and rebuild the recipient's transfer after a crash.
type sendRecord struct {
	ID             string                 `json:"id"` // hex of the recipient's unique pubkey
	State          TransferState          `json:"state"`
	CreatedAt      time.Time              `json:"created_at"`
	Recipient      crypto.MainPubkey      `json:"recipient"`
	RecipientIndex crypto.DerivationIndex `json:"recipient_index"`
	Amount         uint64                 `json:"amount"`
	ChangeIndex    crypto.DerivationIndex `json:"change_index,omitempty"`
	Change         uint64                 `json:"change,omitempty"`
	Spends         []spend.SignedSpend    `json:"spends"`
}

const sendPrefix = "send/"

func (w *HotWallet) putJournal(rec *sendRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if err := w.db.Put([]byte(sendPrefix+rec.ID), data); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// pendingSends returns journal entries that have not reached StateNotified.
func (w *HotWallet) pendingSends() ([]*sendRecord, error) {
	var pending []*sendRecord
	err := w.db.ForEach([]byte(sendPrefix), func(key, value []byte) error {
		var rec sendRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("parse journal entry %q: %w", key, err)
		}
		if rec.State < StateNotified {
			pending = append(pending, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}
