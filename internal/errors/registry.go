package errors

import "sort"

// Template defines a registered error code.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
}

var registry = map[string]Template{
	// Configuration (E100-E109)
	"E100": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Pass --config or set IHI_CONFIG, or run without a file to use defaults",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Configuration file could not be parsed",
		Suggestion: "Check that the file is valid YAML",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// Store (E110-E119)
	"E110": {
		Category: CategoryStore,
		Message:  "Attribute store unavailable",
	},
	"E111": {
		Category:   CategoryStore,
		Message:    "Unknown store driver",
		Suggestion: "Use one of: memory, sqlite, s3",
	},

	// Events (E120-E129)
	"E120": {
		Category:   CategoryEvents,
		Message:    "Event bus connection failed",
		Suggestion: "Check events.nats_url or leave it empty to disable publishing",
	},

	// Transport (E130-E139)
	"E130": {
		Category:   CategoryTransport,
		Message:    "Listener failed",
		Suggestion: "Check that server.addr is free",
	},
	"E131": {
		Category: CategoryTransport,
		Message:  "Shutdown did not complete in time",
	},
}

// Codes returns all registered codes in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
