package types

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// Balance holds a user's funds in one currency. Wallet-split currencies use
// both fields; scalar currencies use Hand only and leave Bank at zero.
type Balance struct {
	Hand int64 `json:"hand"`
	Bank int64 `json:"bank,omitempty"`
}

// Total returns hand plus bank.
func (b Balance) Total() int64 {
	return b.Hand + b.Bank
}

// IsZero reports whether both parts are exactly zero, in which case the
// currency key is removed from the account rather than stored.
func (b Balance) IsZero() bool {
	return b.Hand == 0 && b.Bank == 0
}

// Account is the per-user, per-guild economy document. The currencies and
// inventory payloads are stored as canonical JSON text; those two columns
// are the compare-and-swap surface for every account mutation and must only
// be written through the account store's transition primitive.
type Account struct {
	gorm.Model `json:"-"`
	UserID     string `gorm:"uniqueIndex:idx_accounts_user_guild" json:"user_id"`
	GuildID    string `gorm:"uniqueIndex:idx_accounts_user_guild" json:"guild_id"`
	Currencies string `gorm:"type:text" json:"-"`
	Inventory  string `gorm:"type:text" json:"-"`
	Restricted bool   `json:"restricted"`
}

// Snapshot is the decoded, mutable view of an account document. Ledger and
// instance primitives compute proposed next states on copies of it; the
// account store persists them conditionally.
type Snapshot struct {
	UserID     string                    `json:"user_id"`
	GuildID    string                    `json:"guild_id"`
	Currencies map[string]Balance        `json:"currencies"`
	Inventory  map[string]InventoryEntry `json:"inventory"`
	Restricted bool                      `json:"restricted"`
}

// Clone returns a deep copy of the snapshot. Instance slices are copied so
// a compute step can never alias the state it was derived from.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		UserID:     s.UserID,
		GuildID:    s.GuildID,
		Restricted: s.Restricted,
		Currencies: make(map[string]Balance, len(s.Currencies)),
		Inventory:  make(map[string]InventoryEntry, len(s.Inventory)),
	}
	for id, bal := range s.Currencies {
		out.Currencies[id] = bal
	}
	for id, entry := range s.Inventory {
		copied := InventoryEntry{Quantity: entry.Quantity}
		if len(entry.Instances) > 0 {
			copied.Instances = make([]ItemInstance, len(entry.Instances))
			copy(copied.Instances, entry.Instances)
		}
		out.Inventory[id] = copied
	}
	return out
}

// Balance returns the stored balance for a currency, zero when absent.
func (s *Snapshot) Balance(currencyID string) Balance {
	return s.Currencies[currencyID]
}

// Quantity returns the number of units held for an item, zero when absent.
func (s *Snapshot) Quantity(itemID string) int64 {
	return s.Inventory[itemID].Count()
}

// EncodeDocument serializes the snapshot's currencies and inventory to the
// canonical JSON stored on the account row. encoding/json sorts map keys,
// so equal states always produce byte-identical documents, which is what
// the conditional update compares.
func (s *Snapshot) EncodeDocument() (currencies, inventory string, err error) {
	cur, err := json.Marshal(s.Currencies)
	if err != nil {
		return "", "", fmt.Errorf("encode currencies: %w", err)
	}
	inv, err := json.Marshal(s.Inventory)
	if err != nil {
		return "", "", fmt.Errorf("encode inventory: %w", err)
	}
	return string(cur), string(inv), nil
}

// DecodeSnapshot rebuilds a snapshot from a stored account row.
func DecodeSnapshot(acc *Account) (*Snapshot, error) {
	snap := &Snapshot{
		UserID:     acc.UserID,
		GuildID:    acc.GuildID,
		Restricted: acc.Restricted,
		Currencies: make(map[string]Balance),
		Inventory:  make(map[string]InventoryEntry),
	}
	if acc.Currencies != "" {
		if err := json.Unmarshal([]byte(acc.Currencies), &snap.Currencies); err != nil {
			return nil, fmt.Errorf("decode currencies: %w", err)
		}
	}
	if acc.Inventory != "" {
		if err := json.Unmarshal([]byte(acc.Inventory), &snap.Inventory); err != nil {
			return nil, fmt.Errorf("decode inventory: %w", err)
		}
	}
	return snap, nil
}
