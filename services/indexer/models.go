package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lamport and slot columns are stored as signed bigint on postgres, so values
// above math.MaxInt64 are refused by Apply with ErrValueOutOfRange.

// RoundRecord is the read-model projection of a round, rebuilt from events.
type RoundRecord struct {
	Address             string    `gorm:"primaryKey;size:64" json:"address"`
	Authority           string    `gorm:"size:64;index" json:"authority"`
	RoundID             uint64    `json:"roundId"`
	TicketPriceLamports uint64    `json:"ticketPriceLamports"`
	MaxEntries          uint32    `json:"maxEntries"`
	StartSlot           uint64    `json:"startSlot"`
	EndSlot             uint64    `json:"endSlot"`
	Status              string    `gorm:"size:16;index" json:"status"`
	PotLamports         uint64    `json:"potLamports"`
	TreasuryCutLamports uint64    `json:"treasuryCutLamports"`
	EntryCount          uint32    `json:"entryCount"`
	Winner              string    `gorm:"size:64" json:"winner,omitempty"`
	WinningEntry        string    `gorm:"size:64" json:"winningEntry,omitempty"`
	LastSlot            uint64    `json:"lastSlot"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// EntryRecord mirrors a purchase receipt.
type EntryRecord struct {
	Address      string    `gorm:"primaryKey;size:64" json:"address"`
	Round        string    `gorm:"size:64;index" json:"round"`
	Entrant      string    `gorm:"size:64;index" json:"entrant"`
	Nonce        uint8     `json:"nonce"`
	Tickets      uint16    `json:"tickets"`
	LamportsPaid uint64    `json:"lamportsPaid"`
	Claimed      bool      `json:"claimed"`
	CreatedSlot  uint64    `json:"createdSlot"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ActivityRecord is an append-only log of committed events per wallet.
type ActivityRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type       string    `gorm:"size:48;index" json:"type"`
	Round      string    `gorm:"size:64;index" json:"round"`
	Wallet     string    `gorm:"size:64;index" json:"wallet"`
	Amount     uint64    `json:"amount"`
	Slot       uint64    `gorm:"index" json:"slot"`
	Attributes string    `json:"attributes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AutoMigrate creates or updates the read-model tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RoundRecord{}, &EntryRecord{}, &ActivityRecord{})
}
