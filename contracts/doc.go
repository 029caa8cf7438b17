// Package contracts defines the wire-level types exchanged with the broker.
//
// Every unit on the wire is an Envelope: an identifier, a small header, and
// an opaque JSON body. Envelopes with no operation name in the header are
// replies correlated by identifier; envelopes with an operation name are
// requests routed to a registered handler. Error replies set header.error
// and carry an ErrorBody.
//
// Handlers produce a Result, which is either a success body or a failure
// with a code, message and optional payload.
package contracts
