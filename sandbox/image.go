package sandbox

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
)

// StepKind identifies what an image build step does
type StepKind int

// Build step kinds
const (
	StepAptInstall StepKind = iota
	StepRun
	StepWriteFile
)

// Step is one layer of an image build
type Step struct {
	Kind       StepKind
	Args       []string // packages for StepAptInstall, commands for StepRun
	Path       string   // destination for StepWriteFile
	Content    []byte   // file body for StepWriteFile
	BestEffort bool     // a failing best-effort step does not fail the build
}

// Image describes a container image as a base plus ordered build steps.
// Image values are immutable: every builder method returns a new Image.
type Image struct {
	// Registry is the explicit base reference; empty selects the default base.
	Registry string
	// PythonVersion pins the interpreter of the default base.
	PythonVersion string

	steps []Step
}

// FromRegistry starts an image from an explicit registry reference
func FromRegistry(ref string) Image {
	return Image{Registry: ref}
}

// DebianSlim starts an image from the default Debian-slim python base
func DebianSlim(pythonVersion string) Image {
	return Image{PythonVersion: pythonVersion}
}

// IsRegistry reports whether the image is based on an explicit registry reference
func (i Image) IsRegistry() bool {
	return i.Registry != ""
}

// Steps returns a copy of the build steps in order
func (i Image) Steps() []Step {
	out := make([]Step, len(i.steps))
	copy(out, i.steps)
	return out
}

// AptInstall installs packages with apt-get
func (i Image) AptInstall(packages ...string) Image {
	return i.with(Step{Kind: StepAptInstall, Args: packages})
}

// TryAptInstall installs packages with apt-get, ignoring failures
func (i Image) TryAptInstall(packages ...string) Image {
	return i.with(Step{Kind: StepAptInstall, Args: packages, BestEffort: true})
}

// RunCommands runs each shell command as its own layer
func (i Image) RunCommands(commands ...string) Image {
	return i.with(Step{Kind: StepRun, Args: commands})
}

// WriteFile places content at path inside the image
func (i Image) WriteFile(path string, content []byte) Image {
	return i.with(Step{Kind: StepWriteFile, Path: path, Content: content})
}

func (i Image) with(step Step) Image {
	steps := make([]Step, len(i.steps), len(i.steps)+1)
	copy(steps, i.steps)
	i.steps = append(steps, step)
	return i
}

// DockerfileCommands renders the build steps as Dockerfile instructions
func (i Image) DockerfileCommands() []string {
	var out []string
	for _, step := range i.steps {
		switch step.Kind {
		case StepAptInstall:
			cmd := fmt.Sprintf("apt-get update && DEBIAN_FRONTEND=noninteractive apt-get install -y --no-install-recommends %s",
				strings.Join(step.Args, " "))
			out = append(out, "RUN "+tolerate(cmd, step.BestEffort))
		case StepRun:
			for _, cmd := range step.Args {
				out = append(out, "RUN "+tolerate(cmd, step.BestEffort))
			}
		case StepWriteFile:
			encoded := base64.StdEncoding.EncodeToString(step.Content)
			cmd := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s",
				ShellQuote(path.Dir(step.Path)), encoded, ShellQuote(step.Path))
			out = append(out, "RUN "+tolerate(cmd, step.BestEffort))
		}
	}
	return out
}

func tolerate(cmd string, bestEffort bool) string {
	if !bestEffort {
		return cmd
	}
	return "(" + cmd + ") || true"
}
