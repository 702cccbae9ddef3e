package logging

import (
	"go.uber.org/zap/zapcore"
)

// appenderCore lets zap write through an Appender. Entries are gated by the owning logger's
// level, including for appenders that are themselves zap cores.
type appenderCore struct {
	appender Appender
	level    AtomicLevel
	inUTC    bool
	fields   []zapcore.Field
}

func (c *appenderCore) Enabled(level zapcore.Level) bool {
	return level >= c.level.Get().AsZap()
}

func (c *appenderCore) With(fields []zapcore.Field) zapcore.Core {
	return &appenderCore{
		appender: c.appender,
		level:    c.level,
		inUTC:    c.inUTC,
		fields:   append(append([]zapcore.Field(nil), c.fields...), fields...),
	}
}

func (c *appenderCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *appenderCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.inUTC {
		entry.Time = entry.Time.UTC()
	}
	if len(c.fields) > 0 {
		fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	}
	return c.appender.Write(entry, fields)
}

func (c *appenderCore) Sync() error {
	return c.appender.Sync()
}
