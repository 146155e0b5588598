// Package webhooks receives CRM REST hook deliveries and feeds them into
// the delivery service.
//
// The hook provider disables subscriptions that respond slowly or with
// errors, so the processor acknowledges every verified delivery
// immediately and leaves classification, ledger writes and reconciliation
// to detached work inside the service.
package webhooks
