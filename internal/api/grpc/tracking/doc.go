// Package tracking implements the gRPC transport of the tracker.
//
// The service is tracker.v1.TrackingService. Every method takes and returns a
// google.protobuf.Struct whose fields follow the shapes in package wire, so
// the API needs no generated code beyond the well-known types.
package tracking
