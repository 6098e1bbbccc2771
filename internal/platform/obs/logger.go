// Package obs bootstraps the ambient observability stack shared by all
// three binaries: a zap logger and OpenTelemetry tracer/meter providers.
package obs

import "go.uber.org/zap"

// NewLogger builds the production zap logger every cmd/* entry point uses.
func NewLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
