// Package httpapi exposes the run loop's event stream and command surface
// over HTTP.
//
// Live streams (SSE at /api/events, WebSocket at /api/ws) subscribe to the
// event bus per connection: each delivers one synthetic hello bootstrap
// event, then forwards the subscriber's sequence verbatim in compact JSON.
// Disconnecting tears the subscription down.
//
// Inbound commands never touch the loop directly: /api/control validates the
// instruction and publishes control.paused or control.resumed to the bus,
// where the control listener (and every stream observer) sees it in the same
// total order as data events. /api/prompt validates a routed prompt but is
// not yet wired to override the loop's fixed routing.
package httpapi
