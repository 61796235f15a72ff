package ports

import "context"

// HealthChecker reports the availability of an external dependency.
type HealthChecker interface {
	// Ping returns nil when the dependency answers.
	Ping(ctx context.Context) error
	// Name is the key used in the /health payload (postgresql, redis).
	Name() string
}
