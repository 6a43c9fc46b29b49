package buildinfo

import "fmt"

// Set at build time:
//
//	-X 'github.com/m3rciful/vcfbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/vcfbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/vcfbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// String renders "version (commit)" for startup logs and /info.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
