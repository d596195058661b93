package version

// Version is the release version, overridden at build time with
// -ldflags "-X pageviewinfo/pkg/version.Version=...".
var Version = "v0.1.0"
