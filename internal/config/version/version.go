package version

// Package metadata information, used for versioning and metadata generation
// The release build replaces these variables through -ldflags.
var (
	Version      = "0.1.0"            // Version of rpmbuild-bot
	Toolname     = "rpmbuild-bot-dev" // Name of the tool
	Organization = "unknown"          // Organization that built the tool
	BuildDate    = "unknown"          // Date when the tool was built
	CommitSHA    = "unknown"          // Commit SHA of the tool
)
