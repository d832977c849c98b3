package main

import "os"

// Build-time variables 'version', 'commit' and 'date' live in root.go and
// are populated via -ldflags.
func main() {
	os.Exit(Execute())
}
