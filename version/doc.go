// Package version reports the build version of flowkit binaries.
//
// Version, git commit, branch, and build time are set at compile time
// via -ldflags; anything left unset is filled from the VCS stamps the Go
// toolchain records:
//
//	go build -ldflags "-X github.com/kbukum/flowkit/version.Version=1.0.0" ./cmd/flowdemo
package version
