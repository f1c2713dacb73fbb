package generation

import (
	"fmt"
	"sync"
)

// Dialect maps the universal request/result types to a specific
// provider's HTTP wire format.
type Dialect interface {
	// Name returns the dialect identifier (e.g., "gemini").
	Name() string

	// GeneratePath returns the API endpoint path for the given model.
	GeneratePath(model string) string

	// BuildRequest maps a Request to the provider's JSON request body.
	BuildRequest(req Request, temperature float64) (any, error)

	// ParseResponse maps the provider's JSON response body to a Result.
	ParseResponse(body []byte) (*Result, error)
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{}
)

// RegisterDialect adds a dialect to the global registry. Typically
// called from init() in dialect files.
func RegisterDialect(name string, d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[name] = d
}

// GetDialect retrieves a dialect by name from the global registry.
func GetDialect(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("generation: unknown dialect %q", name)
	}
	return d, nil
}

// Dialects returns the names of all registered dialects.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	return names
}
