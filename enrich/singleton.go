package enrich

import "sync"

// Global library instance and initialization guard.
var (
	globalLibrary *Library
	globalOnce    sync.Once
)

// Global returns the process-wide library.
// Creates an empty library on first call if not already initialized.
func Global() *Library {
	globalOnce.Do(func() {
		globalLibrary = NewLibrary()
	})
	return globalLibrary
}

// InitGlobal installs lib as the process-wide library.
// Must be called before any call to Global() to take effect.
// Safe for concurrent use but only the first call has any effect.
func InitGlobal(lib *Library) {
	globalOnce.Do(func() {
		globalLibrary = lib
	})
}

// ResetGlobal resets the global library for testing purposes.
// This is NOT thread-safe and should only be used in tests.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalLibrary = nil
}
