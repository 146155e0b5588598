package sqlstore

import (
	"fmt"

	"github.com/ckgmra/amare-api/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed stores off one bun handle. Hosts
// hand it either a raw *bun.DB or a go-persistence-bun client.
type RepositoryFactory struct {
	db *bun.DB

	ledgerStore *DeliveryLedgerStore
	ledgerOpts  []LedgerOption
}

func NewRepositoryFactory(opts ...LedgerOption) *RepositoryFactory {
	return &RepositoryFactory{ledgerOpts: opts}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...LedgerOption) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...LedgerOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.ledgerStore != nil {
		return nil
	}
	ledgerStore, err := NewDeliveryLedgerStore(f.db, f.ledgerOpts...)
	if err != nil {
		return err
	}
	f.ledgerStore = ledgerStore
	return nil
}

func (f *RepositoryFactory) LedgerStore() *DeliveryLedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

// DedupIndex exposes the ledger's dedup surface under its own name so
// callers wiring core options can pass both without a type assertion.
func (f *RepositoryFactory) DedupIndex() core.DedupIndex {
	if f == nil || f.ledgerStore == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is required")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
