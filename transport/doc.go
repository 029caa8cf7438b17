// Package transport maintains the single long-lived duplex connection to the
// broker.
//
// A Transport owns at most one underlying connection at a time. It dials
// through a Dialer, arms a connect timeout per attempt, and redials after a
// fixed backoff until the connection opens. Once open, a lost session puts
// the transport back into the connect loop; only a forced Close stops it.
//
// Consumers observe the lifecycle through a Listener: connecting (with the
// attempt number), open, message, close (with the forced flag) and error.
// Notifications are serialized, so listener implementations need no internal
// locking against the transport.
package transport
