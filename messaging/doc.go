// Package messaging implements the correlation layer between the transport
// and application handlers.
//
// Outbound traffic goes through the PendingQueue: sends issued while the
// transport is open execute immediately, sends issued while disconnected are
// buffered in FIFO order and replayed exactly once after the next open.
//
// The Dispatcher assigns a randomized correlation identifier to every
// outgoing request and resolves the matching reply to the registered
// callback exactly once. Entries never expire; a reply that never arrives
// leaves its entry pending for the life of the adapter.
//
// The Router classifies every inbound envelope in fixed priority order:
// correlated reply, health-check probe, then named request looked up in the
// Registry. Handler failures and panics are converted into error replies and
// never escape the router.
package messaging
