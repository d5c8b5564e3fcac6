package main

import "runtime"

// runtimeInterpreterTag and runtimeArchTag feed the plugin fingerprint's
// portability tags: a build is only shared across machines that report
// the same Go toolchain version and architecture.
func runtimeInterpreterTag() string { return runtime.Version() }

func runtimeArchTag() string { return runtime.GOOS + "/" + runtime.GOARCH }
