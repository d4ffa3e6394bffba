// Package memoryhost implements sessions.DeliveryHost with in-process data
// structures: a mutex-guarded ordered log per participant plus a subscriber
// set. It is the host of choice for tests and single-process deployments;
// use redishost when gateways span nodes.
package memoryhost
