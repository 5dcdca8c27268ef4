// Command lagtrack tracks particles through a decomposed mesh.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/notargets/lagtrack/config"
	"github.com/notargets/lagtrack/logging"
	"github.com/notargets/lagtrack/simulation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the release of the command.
const Version = "0.1.0"

type options struct {
	config    string
	logLevel  string
	logFormat string
	log       *logrus.Logger
}

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "lagtrack",
		Short: "Lagrangian particle tracking on decomposed meshes.",
		Long: `lagtrack moves particles through an unstructured mesh in a given flow,
with wall deposition, resuspension and fouling models. A run is described by
a TOML file given with the --config flag.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.Setup(o.logLevel, o.logFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			o.log = log
			return nil
		},
	}
	root.PersistentFlags().StringVar(&o.config, "config", "", "run configuration file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "logging level")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "text", "log format, text or json")
	root.AddCommand(runCmd(o), validateCmd(o), versionCmd())
	return root
}

func (o *options) load() (*config.Config, error) {
	if o.config == "" {
		return nil, fmt.Errorf("%w: no --config file given", config.ErrInvalid)
	}
	return config.Load(o.config)
}

func runCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a simulation.",
		Long: `run injects and tracks the particles over the configured steps and
prints the particle balance at each report step.`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.load()
			if err != nil {
				return err
			}
			s, err := simulation.New(c, o.log)
			if err != nil {
				return err
			}
			s.Out = cmd.OutOrStdout()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return s.Run(ctx)
		},
	}
}

func validateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:               "validate",
		Short:             "Check a configuration and its mesh.",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.load()
			if err != nil {
				return err
			}
			s, err := simulation.New(c, o.log)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d cells, %d zones, %d ranks\n", o.config, s.Mesh.NumCells, len(s.Zones.Zones), len(s.Locals))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version number",
		DisableAutoGenTag: true,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("lagtrack v%s\n", Version)
		},
	}
}

