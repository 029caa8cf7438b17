// Package bridge satisfies synchronous HTTP trigger requests by
// round-tripping messages over the adapter connection.
//
// Every inbound HTTP request other than the reserved health path is treated
// as a workflow trigger. The bridge extracts the routing fields from the
// request headers, fetches the workflow metadata over the connection, hands
// the request to the externally supplied trigger handler, and finally issues
// the trigger request itself when the handler completes. The completion is
// correlated when the handler wants the workflow response, fire-and-forget
// otherwise, and the surrounding HTTP exchange settles exactly once either
// way.
//
// Concurrent HTTP requests each ride their own correlation identifier and
// never block one another.
package bridge
