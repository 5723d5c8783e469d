package ledger

import "errors"

// ErrEntryNotFound classifies a channel that no longer exists on the ledger —
// a terminal error that blocks the owning account.
var ErrEntryNotFound = errors.New("ledger: entry not found")

// PaymentChannel mirrors the subset of an XRPL PayChannel ledger entry this
// connector needs to validate and account for a channel.
type PaymentChannel struct {
	// ChannelID is the channel's ledger id, hex-encoded, upper-case.
	ChannelID string

	Account        string
	Amount         uint64
	Balance        uint64
	PublicKey      string
	Destination    string
	SettleDelay    uint32
	CancelAfter    *uint32
	Expiration     *uint32
	SourceTag      *uint32
	DestinationTag *uint32
	PreviousTxnID  string
	PreviousTxnSeq uint32
}

// TxResult is the outcome of a confirmed transaction submission.
type TxResult struct {
	Hash         string
	EngineResult string
	LedgerIndex  uint32
	Validated    bool

	// ChannelID is the ledger index of the PayChannel object this transaction
	// created, if any (set only for a confirmed PaymentChannelCreate). It is
	// the channel's on-ledger identity and is distinct from Hash, the
	// submitting transaction's own hash.
	ChannelID string
}
