package log

import (
	hclog "github.com/hashicorp/go-hclog"
)

// EnableTrace raises L to trace level regardless of the TRACE variable.
func EnableTrace() {
	L.SetLevel(hclog.Trace)
}

// Quiet drops L to error level. Tests use it to keep output readable.
func Quiet() {
	L.SetLevel(hclog.Error)
}
