package accounting

import (
	"time"

	"github.com/google/uuid"
)

// Account is a depositor, keyed by ledger address. Its numeric id is the memo depositors
// attach to their transfers.
type Account struct {
	ID        int64     `json:"id"`
	UUID      uuid.UUID `json:"uuid"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}
