// Package sandbox provides the remote sandbox platform abstraction.
//
// The package defines the Platform interface (registry image resolution,
// volume lookup, sandbox creation) and the Sandbox handle (exec, tunnel
// lookup, poll, terminate, wait, detach). Image describes the container
// image as an immutable base plus ordered build steps, and CreateRequest
// carries only the resources the caller actually set.
//
// ModalPlatform is the production implementation. Package sandboxtest
// provides an in-memory fake for tests.
//
// Usage:
//
//	platform, err := sandbox.NewPlatform(logger, cfg)
//	sb, err := platform.Create(ctx, sandbox.CreateRequest{
//	    Image:            sandbox.DebianSlim("3.11").AptInstall("openssh-server"),
//	    UnencryptedPorts: []int{22},
//	})
package sandbox
