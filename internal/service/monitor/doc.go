// Package monitor wires the presence monitor daemon: store, notifier, diff
// engine, JetStream consumer, alarm scheduler and admin gRPC API.
package monitor
