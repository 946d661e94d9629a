package pipeline

import "github.com/PeterBul/needlesim/internal/needle"

// opsf logs to the ops stream (session lifecycle, failed restores).
func opsf(format string, args ...interface{}) {
	needle.Opsf("pipeline: "+format, args...)
}

// diagf logs to the diag stream (host query failures).
func diagf(format string, args ...interface{}) {
	needle.Diagf("pipeline: "+format, args...)
}

// tracef logs to the trace stream (per-tick values).
func tracef(format string, args ...interface{}) {
	needle.Tracef("pipeline: "+format, args...)
}
