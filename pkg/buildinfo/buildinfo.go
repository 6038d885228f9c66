package buildinfo

// Set via -ldflags, e.g.
// go build -ldflags "-X github.com/gilby125/flight-offers-harvester/pkg/buildinfo.Version=v1.2.3 -X github.com/gilby125/flight-offers-harvester/pkg/buildinfo.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build identity for logs and the version command.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
