package version

// version is the version of probekit.
//
// This value is expected to be set via build-time injection.
var version string

// Version returns the version of probekit.
func Version() string {
	if version == "" {
		return "unknown"
	}
	return version
}
