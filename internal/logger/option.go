package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// componentLevels maps a logger name to its own minimum level.
//
//nolint:gochecknoglobals // Read by WithName on every named context.
var componentLevels atomic.Pointer[map[string]zapcore.Level]

// coreWithLevel wraps a zapcore.Core with its own minimum level.
// The level may be lower than the global one, so a single component can log at debug.
type coreWithLevel struct {
	zapcore.Core

	level zapcore.Level
}

func (c *coreWithLevel) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *coreWithLevel) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

//nolint:ireturn,nolintlint // Returning zapcore.Core is intended for zap integration.
func (c *coreWithLevel) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithLevel{
		c.Core.With(fields),
		c.level,
	}
}

// WithLevel replaces the level of an existing logger.
//
//nolint:ireturn,nolintlint // Returning zap.Option is intended for zap integration.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(
		func(core zapcore.Core) zapcore.Core {
			return &coreWithLevel{core, lvl}
		})
}

// SetComponentLevels configures per-component levels, e.g. {"mqtt": "warn", "gtfsrt": "debug"}.
// They apply to loggers created by WithName afterwards. Nil or empty clears them.
func SetComponentLevels(levels map[string]string) error {
	parsed := make(map[string]zapcore.Level, len(levels))

	for name, s := range levels {
		lvl, ok := ParseLogLevel(s)
		if !ok {
			return fmt.Errorf("%w: %q for %s", errUnknownLevel, s, name)
		}

		parsed[name] = lvl
	}

	componentLevels.Store(&parsed)

	return nil
}

func componentLevel(name string) (zapcore.Level, bool) {
	levels := componentLevels.Load()
	if levels == nil {
		return 0, false
	}

	lvl, ok := (*levels)[name]

	return lvl, ok
}
