// Package config defines the bus-tracker settings shared by the binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Values from the YAML file can be overridden by TRACKER_* environment
// variables, optionally read from a .env file first.
package config
