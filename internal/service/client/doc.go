// Package client implements the driver's panic button.
//
// The command connects to the tracker server and triggers an emergency for the vehicle,
// retrying until the alert is delivered or the command is interrupted.
package client
