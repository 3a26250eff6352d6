// Package launcher provisions an SSH-reachable sandbox and supervises it.
//
// A Launcher builds the sandbox image (sshd, the caller's public key and an
// optional python install), resolves volumes and mounts, creates the sandbox
// and returns a Session once the SSH tunnel is up. Session.Supervise then
// polls the sandbox until it exits, the session timeout elapses or the
// context is cancelled, and makes sure the sandbox is terminated on every
// path out.
package launcher
