// Package gateway implements the WebSocket Gateway (§4.5): a per-client
// duplex session that fans client frames into the bus and fans bus events
// back out to subscribed clients, with filtering, bounded-queue
// backpressure, and a ping/pong liveness check.
//
// Centrifuge (github.com/centrifugal/centrifuge) supplies the WebSocket
// transport and per-connection session object; channel semantics —
// publish, subscribe, the frontend_broadcast fan-out, per-task stream
// filtering — are implemented directly against internal/bus so the
// gateway observes exactly the ordering and at-most-once-delivery
// contract the rest of the fabric does, rather than a second, divergent
// pub/sub layer.
package gateway
