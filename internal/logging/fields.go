package logging

import "time"

// Field constructors, grouped by the shapes ConcordKV's subsystems log most.

func String(key, value string) Field  { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Component(name string) Field  { return String("component", name) }
func Operation(op string) Field    { return String("operation", op) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func Count(n int) Field            { return Int("count", n) }
func Path(p string) Field          { return String("path", p) }
func Engine(name string) Field     { return String("engine", name) }
func Key(k []byte) Field           { return String("key", previewKey(k)) }
func LevelField(n int) Field       { return Int("level", n) }
func Sequence(seq uint64) Field    { return Uint64("sequence", seq) }

// previewKey truncates long keys so log lines stay bounded.
func previewKey(k []byte) string {
	const max = 64
	if len(k) <= max {
		return string(k)
	}
	return string(k[:max]) + "..."
}
