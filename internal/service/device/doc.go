// Package device simulates an on-board GPS unit. It drives a straight route and
// publishes a fix per tick to the MQTT uplink.
package device
