package buildinfo

// Set via: -ldflags "-X github.com/varsilias/askdesk/internal/buildinfo.Version=<version> ..."
var (
	Version = "dev"
	Commit  = "unknown"
	BuiltAt = "unknown"
)
