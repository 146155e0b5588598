package sqlstore

import "github.com/ckgmra/amare-api/core"

var (
	_ core.LedgerStore = (*DeliveryLedgerStore)(nil)
	_ core.DedupIndex  = (*DeliveryLedgerStore)(nil)
	_ core.LedgerStore = (*CachedDeliveryLedgerStore)(nil)
	_ core.DedupIndex  = (*CachedDeliveryLedgerStore)(nil)
)
