// Package sysmem reports how much physical memory is available right now.
package sysmem

// Available returns the currently free physical memory in bytes. The
// second value is false when the platform offers no way to ask.
func Available() (uint64, bool) {
	return available()
}
