// Package presence consumes presence snapshots from a NATS JetStream stream.
//
// The message subject is the routing key; the payload is the JSON event
// decoded by the ingest package.
package presence
