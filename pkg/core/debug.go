package core

import (
	"sync"

	"github.com/go-flui/flui/pkg/errors"
)

// DebugMode controls whether diagnostic detail (stack traces, widget type
// names) is included in fallback error widgets.
var DebugMode = true

// SetDebugMode enables or disables debug mode for the framework.
func SetDebugMode(debug bool) {
	DebugMode = debug
}

// ErrorWidgetBuilder creates a fallback widget when a widget build panics.
// Returning nil clears the failed subtree instead.
type ErrorWidgetBuilder func(err *errors.BuildError) Widget

var (
	errorWidgetBuilder ErrorWidgetBuilder
	errorBuilderMu     sync.RWMutex
)

// SetErrorWidgetBuilder configures the global error widget builder. Pass nil
// to clear it, in which case failed subtrees render nothing.
func SetErrorWidgetBuilder(builder ErrorWidgetBuilder) {
	errorBuilderMu.Lock()
	defer errorBuilderMu.Unlock()
	errorWidgetBuilder = builder
}

// GetErrorWidgetBuilder returns the current error widget builder, or nil.
func GetErrorWidgetBuilder() ErrorWidgetBuilder {
	errorBuilderMu.RLock()
	defer errorBuilderMu.RUnlock()
	return errorWidgetBuilder
}
