package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/isdmx/sshbox/launcher"
)

// exitCodeError carries a non-zero exit code whose cause was already reported
type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		opts       launcher.Options
	)

	cmd := &cobra.Command{
		Use:   "sshbox",
		Short: "Launch a GPU sandbox you can SSH into",
		Long: `sshbox starts a remote sandbox running sshd with your public key installed,
prints the ssh command that reaches it and keeps it running until it exits,
the --timeout elapses or you press Ctrl-C.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLaunch(newViper(configFile), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./sshbox.yaml, ~/.config/sshbox/sshbox.yaml, /etc/sshbox/sshbox.yaml)")

	flags := cmd.Flags()
	flags.IntVar(&opts.CPU, "cpu", 0, "vCPU cores to request")
	flags.IntVar(&opts.Memory, "memory", 0, "Memory to request in GB")
	flags.StringVar(&opts.GPU, "gpu", "", "GPU to request, e.g. H100, H100:3, A100-80GB")
	flags.IntVar(&opts.Timeout, "timeout", 0, "Terminate the sandbox after this many hours")
	flags.StringVar(&opts.Image, "image", "", "Registry image to start from instead of Debian slim")
	flags.StringVar(&opts.AddPython, "add-python", "", "Python version to install on --image, or to pin on the default base")
	flags.StringArrayVar(&opts.Mounts, "mount", nil, "Copy a local directory in, as local[:/remote] (repeatable)")
	flags.StringArrayVar(&opts.Volumes, "volume", nil, "Mount a persistent volume at /vol/<name> (repeatable)")
	flags.BoolVar(&opts.Detach, "detach", false, "Exit once SSH is ready and leave the sandbox running until its timeout")

	cmd.AddCommand(newMCPCmd(&configFile), newConfigCmd(&configFile))
	return cmd
}

func runLaunch(v *viper.Viper, opts launcher.Options) error {
	run := &launchRun{opts: opts, out: os.Stdout}

	app := fx.New(
		appOptions(v),
		fx.Provide(launcher.New),
		fx.Invoke(run.register),
	)

	code, err := runApp(app)
	if err != nil {
		return err
	}
	if run.err != nil {
		return run.err
	}
	if code != 0 {
		return exitCodeError(code)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var code exitCodeError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
