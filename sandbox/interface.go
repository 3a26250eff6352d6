// Package sandbox provides the remote sandbox platform abstraction.
//
// The sandbox package defines the Platform and Sandbox interfaces the
// launcher drives, the request types sent at creation time, and the
// Modal-backed implementation.
package sandbox

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoTunnel is returned when the sandbox exposes no TCP tunnel for the requested port.
var ErrNoTunnel = errors.New("no tcp tunnel for port")

// Platform creates sandboxes and resolves the handles they depend on
type Platform interface {
	// ResolveRegistryImage checks that ref can be pulled and built by the platform.
	ResolveRegistryImage(ctx context.Context, ref string) error
	// Volume returns the persistent volume called name, creating it if missing.
	Volume(ctx context.Context, name string) (Volume, error)
	// Create starts a sandbox described by req.
	Create(ctx context.Context, req CreateRequest) (Sandbox, error)
	Close() error
}

// Sandbox is a handle on one running remote sandbox
type Sandbox interface {
	ID() string
	// Exec starts command inside the sandbox without waiting for it.
	Exec(ctx context.Context, command []string) error
	// Tunnel resolves the public TCP endpoint forwarded to the container port.
	Tunnel(ctx context.Context, port int) (Endpoint, error)
	// Poll returns nil while the sandbox runs, else its exit code.
	Poll(ctx context.Context) (*int, error)
	Terminate(ctx context.Context) error
	// Wait blocks until the sandbox has exited. Termination is not an error.
	Wait(ctx context.Context) (int, error)
	// Detach releases the local handle without stopping the sandbox.
	Detach() error
}

// Volume is a named persistent volume handle
type Volume interface {
	Name() string
}

// Endpoint is the externally reachable address of a tunnel
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Mount copies a local directory into the sandbox at Remote
type Mount struct {
	Local  string
	Remote string
}

// CreateRequest represents the parameters for sandbox creation.
// A nil field is left out of the platform request so that the platform default applies.
type CreateRequest struct {
	Image            Image
	UnencryptedPorts []int
	Timeout          *time.Duration
	GPU              *string
	CPU              *float64
	MemoryMiB        *int
	Volumes          map[string]Volume
	Mounts           []Mount
}

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o600
)

// CreateTarFromDir creates a tar.gz archive from a directory
func CreateTarFromDir(srcDir string) ([]byte, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", srcDir)
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	err = filepath.Walk(srcDir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Symlinks and devices are not carried into the sandbox
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, file)
		if err != nil {
			return err
		}

		// Update the name to be relative to the source directory
		relPath, err := filepath.Rel(srcDir, file)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if !fi.IsDir() {
			data, err := os.Open(file)
			if err != nil {
				return err
			}
			defer data.Close()

			if _, err := io.Copy(tarWriter, data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}

	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ListTar returns the entry names of a tar.gz archive in archive order
func ListTar(tarData []byte) ([]string, error) {
	gzipReader, err := gzip.NewReader(bytes.NewReader(tarData))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	var names []string
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading tar: %w", err)
		}
		names = append(names, header.Name)
	}
	return names, nil
}

// ShellQuote quotes s for use as a single POSIX shell word
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
