// Package bot mirrors on-chain account state into local storage and
// maintains a live price index. It is a passive, best-effort cache with no
// authority over correctness: deserialization failures are logged and
// skipped, never fatal.
package bot

import (
	"encoding/json"
	"log/slog"

	"github.com/scale-protocol/bond/internal/model"
)

// Kind discriminates the record shapes carried by ledger entries.
type Kind string

const (
	KindMarket   Kind = "market"
	KindUser     Kind = "user"
	KindPosition Kind = "position"
	KindUnknown  Kind = ""
)

// Byte lengths of the legacy fixed-size record encodings, including the
// 8-byte discriminator prefix. Kept only for classifying snapshots that
// predate the explicit kind tag; entries from the current host always
// carry the tag.
const (
	legacyMarketLen   = 318
	legacyUserLen     = 88
	legacyPositionLen = 276
)

// AccountUpdate is one (identity, ledger-entry) pair from the
// subscription stream, and also the snapshot format persisted by Storage.
type AccountUpdate struct {
	// Address is the record's ledger identity.
	Address string `json:"address"`
	// Kind is the explicit record discriminant. May be empty for legacy
	// snapshots, in which case classification falls back to byte length.
	Kind Kind `json:"kind,omitempty"`
	// Data is the serialized record.
	Data json.RawMessage `json:"data"`
	// Funding is the balance keeping the ledger entry alive. A drained
	// entry (zero or below) is archived.
	Funding int64 `json:"funding"`
}

// Record is the decoded form of a ledger entry: exactly one of the three
// pointers is set for a known kind.
type Record struct {
	Kind     Kind
	Market   *model.Market
	User     *model.UserAccount
	Position *model.Position
}

// Classify decodes a ledger entry into a tagged record. The explicit kind
// field wins; without it the byte length of the payload is matched against
// the known record shapes. Undecodable entries come back as KindUnknown.
func Classify(up AccountUpdate) Record {
	kind := up.Kind
	if kind == KindUnknown {
		kind = classifyByLength(len(up.Data))
	}
	switch kind {
	case KindMarket:
		var m model.Market
		if err := json.Unmarshal(up.Data, &m); err != nil {
			slog.Error("deserialize market error", "address", up.Address, "err", err)
			return Record{}
		}
		return Record{Kind: KindMarket, Market: &m}
	case KindUser:
		var u model.UserAccount
		if err := json.Unmarshal(up.Data, &u); err != nil {
			slog.Error("deserialize user error", "address", up.Address, "err", err)
			return Record{}
		}
		return Record{Kind: KindUser, User: &u}
	case KindPosition:
		var p model.Position
		if err := json.Unmarshal(up.Data, &p); err != nil {
			slog.Error("deserialize position error", "address", up.Address, "err", err)
			return Record{}
		}
		return Record{Kind: KindPosition, Position: &p}
	default:
		return Record{}
	}
}

func classifyByLength(n int) Kind {
	switch n {
	case legacyMarketLen:
		return KindMarket
	case legacyUserLen:
		return KindUser
	case legacyPositionLen:
		return KindPosition
	default:
		return KindUnknown
	}
}
