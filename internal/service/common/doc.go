// Package common holds helpers shared by the client binaries.
//
// It provides a typed TrackingService gRPC client with call timeouts and a
// helper that derives a driver id from the current user and host.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
