// Package logger wraps zap for the tracker binaries.
//
// A global sugared logger writes console or JSON lines to stdout. Services pass
// it through context.Context and extend it with WithName and WithKV. Named
// components such as "mqtt" or "gtfsrt" may run at their own level via
// SetComponentLevels, configured under logging.components.
package logger
