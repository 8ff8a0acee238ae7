// Package server assembles the tracker process from configuration: location stores,
// alert notifiers, position sources, the tracking engine and the gRPC and HTTP surfaces.
package server
