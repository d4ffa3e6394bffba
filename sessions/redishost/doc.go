// Package redishost implements sessions.DeliveryHost on Redis Streams so a
// fleet of gateway processes can serve participants of the same logical
// server. Each participant id maps to one stream: Deliver is XADD, Subscribe
// is a blocking XREAD loop with cursor resume, Cleanup deletes the stream.
//
// Trade-offs
//
//	Pros: multi-process fan-out, reconnect replay survives a gateway restart
//	Cons: at-least-once delivery; handlers must tolerate replays
//
// Use memoryhost for tests and single-process deployments.
package redishost
