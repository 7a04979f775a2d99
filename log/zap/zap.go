package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/entcache"
)

var _ entcache.Logger = Logger{}

// Logger adapts a *zap.Logger. Fields are emitted as zap.Any.
type Logger struct{ L *zap.Logger }

// New names the logger so store, gateway and reconciler lines can be told apart.
func New(l *zap.Logger, name string) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named(name)}
}

func (z Logger) Debug(msg string, f entcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f entcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f entcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f entcache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f entcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
