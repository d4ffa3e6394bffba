// Package sessions holds the authoritative session model: the concurrency-safe
// Registry mapping session ids to immutable Session snapshots, the
// StateContainer that serializes game-state mutations, and the DeliveryHost
// contract transports implement to push ordered events to participants.
//
// Layers & roles
//
//	Registry       -> copy-on-write keyed store; optimistic compare-and-swap
//	                  updates, participant index committed in the same swap
//	Session        -> immutable roster/lifecycle snapshot; mutated only by
//	                  replacing it through Registry.Upsert
//	StateContainer -> the one mutable cell per active session; per-container
//	                  mutex serializes engine calls, an atomic snapshot serves
//	                  lock-free reads
//	DeliveryHost   -> per-participant ordered message log with resume, the
//	                  seam between the core and the wire transport
//
// Implementations of DeliveryHost live in memoryhost (in-process) and
// redishost (Redis Streams, for gateways spread across nodes).
package sessions
