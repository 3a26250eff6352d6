package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/isdmx/sshbox/sandbox"
)

const authorizedKeysPath = "/root/.ssh/authorized_keys"

// sshdSetup prepares the daemon runtime directory and allows key-only root login.
var sshdSetup = []string{
	"mkdir -p /run/sshd /root/.ssh",
	"chmod 700 /root/.ssh",
	`echo "PasswordAuthentication no" >> /etc/ssh/sshd_config`,
	`echo "PermitRootLogin prohibit-password" >> /etc/ssh/sshd_config`,
}

// BuildImage assembles the sandbox image. Step order is fixed: base, sshd
// package, sshd setup, authorized key, key permissions, then the optional
// best-effort python install on registry bases.
func (l *Launcher) BuildImage(ctx context.Context, opts Options) (sandbox.Image, error) {
	image := sandbox.DebianSlim(opts.AddPython)
	if opts.Image != "" {
		if err := l.platform.ResolveRegistryImage(ctx, opts.Image); err != nil {
			l.logger.Warn("registry image unavailable, falling back to default base",
				zap.String("image", opts.Image),
				zap.String("fallback", l.config.DefaultBaseImage(opts.AddPython)),
				zap.Error(err))
		} else {
			image = sandbox.FromRegistry(opts.Image)
		}
	}

	key, err := readAuthorizedKeys(l.config.SSH.PublicKey)
	if err != nil {
		return sandbox.Image{}, err
	}

	image = image.
		AptInstall("openssh-server").
		RunCommands(sshdSetup...).
		WriteFile(authorizedKeysPath, key).
		RunCommands("chmod 600 " + authorizedKeysPath)

	if image.IsRegistry() && opts.AddPython != "" {
		image = image.TryAptInstall("python"+opts.AddPython, "python3-pip")
	}

	return image, nil
}

// readAuthorizedKeys reads every public key in path and returns them in
// authorized_keys format, comments preserved.
func readAuthorizedKeys(path string) ([]byte, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand public key path %s: %w", path, err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	var out bytes.Buffer
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		pub, comment, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key %s: %w", expanded, err)
		}

		line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
		if comment != "" {
			line += " " + comment
		}
		out.WriteString(line + "\n")
		rest = next
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("no public key found in %s", expanded)
	}
	return out.Bytes(), nil
}
