// ABOUTME: Product and version identification
// ABOUTME: Version is overridable at link time with -ldflags -X
package version

import "fmt"

const (
	Product      = "voicelink"
	Manufacturer = "audiorouter"
)

// Version is set by release builds
var Version = "0.1.0"

// String returns the product banner, e.g. "voicelink 0.1.0"
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
