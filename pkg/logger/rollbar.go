package logger

import (
	"errors"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap/zapcore"
)

// RollbarOptions configures the global rollbar client.
type RollbarOptions struct {
	Token       string
	Environment string
	CodeVersion string
}

// reportFunc forwards one entry to rollbar. Swapped in tests.
type reportFunc func(level zapcore.Level, err error, message string, extras map[string]interface{})

// RollbarCore is a zapcore.Core that reports error level entries to rollbar.
type RollbarCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
	report reportFunc
}

// NewRollbarCore configures rollbar and returns a core reporting ErrorLevel and above.
func NewRollbarCore(opts RollbarOptions) *RollbarCore {
	rollbar.SetToken(opts.Token)
	rollbar.SetEnvironment(opts.Environment)
	rollbar.SetCodeVersion(opts.CodeVersion)
	rollbar.SetEnabled(opts.Token != "")
	return &RollbarCore{LevelEnabler: zapcore.ErrorLevel, report: sendToRollbar}
}

func (c *RollbarCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *RollbarCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *RollbarCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	var cause error
	for _, field := range append(append([]zapcore.Field{}, c.fields...), fields...) {
		if field.Type == zapcore.ErrorType {
			if err, ok := field.Interface.(error); ok && cause == nil {
				cause = err
			}
		}
		field.AddTo(enc)
	}
	if entry.Caller.Defined {
		enc.Fields["caller"] = entry.Caller.TrimmedPath()
	}
	c.report(entry.Level, cause, entry.Message, enc.Fields)
	return nil
}

func (c *RollbarCore) Sync() error {
	rollbar.Wait()
	return nil
}

func sendToRollbar(level zapcore.Level, err error, message string, extras map[string]interface{}) {
	if err == nil {
		err = errors.New(message)
	} else {
		extras["message"] = message
	}
	if level >= zapcore.DPanicLevel {
		rollbar.Critical(err, extras)
		return
	}
	rollbar.Error(err, extras)
}
