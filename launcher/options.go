package launcher

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/isdmx/sshbox/sandbox"
)

// Options are the per-invocation launch options. Zero values mean "unset".
type Options struct {
	CPU       int      // vCPU cores
	Memory    int      // GB
	GPU       string   // e.g. "H100", "H100:3", "A100-80GB"
	Timeout   int      // hours
	Image     string   // registry reference; empty selects the default base
	AddPython string   // python version pin
	Mounts    []string // local[:/remote]
	Volumes   []string // volume names
	Detach    bool     // handled by the caller, not by Launcher
}

// TimeoutDuration returns the session timeout, or zero when none was set.
func (o Options) TimeoutDuration() time.Duration {
	if o.Timeout <= 0 {
		return 0
	}
	return time.Duration(o.Timeout) * time.Hour
}

// ParseMount splits a local[:/remote] spec. The remote part is kept verbatim;
// without one, the remote path is prefix/<base name of local>.
// The local path is expanded but not checked for existence.
func ParseMount(spec, prefix string) (sandbox.Mount, error) {
	local, remote, hasRemote := strings.Cut(spec, ":")

	expanded, err := homedir.Expand(local)
	if err != nil {
		return sandbox.Mount{}, fmt.Errorf("invalid mount %q: %w", spec, err)
	}

	if !hasRemote {
		remote = strings.TrimSuffix(prefix, "/") + "/" + finalComponent(expanded)
	}

	return sandbox.Mount{Local: expanded, Remote: remote}, nil
}

// finalComponent returns the last path element, or "" when the path has none
// (".", "/" or empty).
func finalComponent(p string) string {
	base := filepath.Base(p)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// ParseMounts parses every non-empty spec, keeping input order
func ParseMounts(specs []string, prefix string) ([]sandbox.Mount, error) {
	var mounts []sandbox.Mount
	for _, spec := range specs {
		if spec == "" {
			continue
		}
		m, err := ParseMount(spec, prefix)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// VolumePath returns the mount path of the named volume
func VolumePath(prefix, name string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

// GPUSpec is a parsed NAME[:count] GPU request
type GPUSpec struct {
	Type  string
	Count int // 0 when the count part is not a positive integer
}

// ParseGPU splits a GPU spec into log fields. The platform receives the raw
// string, so an unrecognised spec is only rejected when the sandbox is created.
func ParseGPU(spec string) GPUSpec {
	if spec == "" {
		return GPUSpec{}
	}

	name, count, ok := strings.Cut(spec, ":")
	if !ok {
		return GPUSpec{Type: name, Count: 1}
	}

	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return GPUSpec{Type: name}
	}
	return GPUSpec{Type: name, Count: n}
}
