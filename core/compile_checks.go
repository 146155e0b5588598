package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ LedgerStore     = (*MemoryLedgerStore)(nil)
	_ DedupIndex      = (*MemoryLedgerStore)(nil)
	_ DeliveryService = (*Service)(nil)
	_ TaskRunner      = GoTaskRunner{}
	_ TaskRunner      = SyncTaskRunner{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
