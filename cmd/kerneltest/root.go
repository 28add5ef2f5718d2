package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/kerneltest/internal/runtime"
	"github.com/drblury/kerneltest/internal/runtime/config"
	"github.com/drblury/kerneltest/internal/runtime/logging"
)

// Version is set at build time.
var Version = "dev"

type app struct {
	cfgFile string
	conf    *config.Config
	log     logging.ServiceLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "kerneltest",
		Short: "Boot management kernels from files and inspect them",
		Long: `kerneltest boots an isolated management kernel around a subsystem
described in a YAML schema, replays a boot log against it and prints the
resulting model or resource description.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			conf, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			a.conf = conf
			a.log = logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: conf.SlogLevel()})))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String("format", config.DefaultFormat, "boot log format")
	flags.Bool("persist", false, "round trip the boot log through the persister")
	flags.String("controller-factory", "", "controller factory for legacy kernels")
	flags.String("events-transport", config.DefaultEventsTransport, "container event sink (channel|io)")
	flags.String("events-file", "", "file the io event sink writes to")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")

	_ = rootCmd.RegisterFlagCompletionFunc("events-transport", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"channel", "io"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newModelCommand(a))
	rootCmd.AddCommand(newDescribeCommand(a))
	rootCmd.AddCommand(newFormatsCommand())

	return rootCmd
}

func (a *app) session() (*runtimepkg.Session, error) {
	return runtimepkg.NewSession(
		runtimepkg.WithConfig(a.conf),
		runtimepkg.WithLogger(a.log),
		runtimepkg.WithRegisterer(prometheus.NewRegistry()),
	)
}
