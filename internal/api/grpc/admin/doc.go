// Package admin implements the gRPC transport for operator changes.
//
// Messages are google.protobuf.Struct values carrying the JSON views declared
// here, so clients need no generated code. The server adapts them to domain
// types and calls into a provided business-service interface.
package admin
