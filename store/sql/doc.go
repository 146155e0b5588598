// Package sqlstore implements the delivery ledger on bun. The ledger table
// is append-only: every attempt inserts a new row, and the authoritative
// state of a queue id is the row with the greatest updated_at. Retry scans
// and dedup checks are expressed as queries over that resolution so readers
// never depend on insertion order.
package sqlstore
