package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	runtimepkg "github.com/drblury/kerneltest/internal/runtime"
	"github.com/drblury/kerneltest/internal/runtime/declarative"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/format"
	"github.com/drblury/kerneltest/internal/runtime/jsoncodec"
	"github.com/drblury/kerneltest/internal/runtime/model"
)

type bootFlags struct {
	schema    string
	boot      string
	subsystem string
	legacy    string
	output    string
}

func (f *bootFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.schema, "schema", "", "declarative extension schema (YAML)")
	cmd.Flags().StringVar(&f.boot, "boot", "", "boot log file in the configured format")
	cmd.Flags().StringVar(&f.subsystem, "subsystem", "", "main subsystem (default: first subsystem in the schema)")
	cmd.Flags().StringVar(&f.legacy, "legacy", "", "boot a legacy kernel pinned to this model version")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "output format (json|yaml)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func newModelCommand(a *app) *cobra.Command {
	f := &bootFlags{}
	var defaults bool

	cmd := &cobra.Command{
		Use:   "model",
		Short: "Boot a kernel and print its whole model",
		Example: `  # Boot the subsystem in ext.yaml from a JSON boot log
  kerneltest model --schema ext.yaml --boot boot.json

  # Same, as a 1.0.0 legacy kernel, including attribute defaults
  kerneltest model --schema ext.yaml --boot boot.json --legacy 1.0.0 --defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withKernel(f, func(services runtimepkg.KernelServices) error {
				whole, err := services.ReadWholeModel(defaults)
				if err != nil {
					return err
				}
				return writeNode(cmd.OutOrStdout(), whole, f.output)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&defaults, "defaults", false, "include attribute defaults")
	return cmd
}

func newDescribeCommand(a *app) *cobra.Command {
	f := &bootFlags{}
	var address string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Boot a kernel and print a resource description",
		Example: `  # Describe the main subsystem
  kerneltest describe --schema ext.yaml --boot boot.json

  # Describe another resource
  kerneltest describe --schema ext.yaml --boot boot.json --address /subsystem=test/child=a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withKernel(f, func(services runtimepkg.KernelServices) error {
				addr := address
				if addr == "" {
					addr = model.Subsystem(f.subsystem).String()
				}
				desc, err := services.ReadFullModelDescription(dmr.FromString(addr))
				if err != nil {
					return err
				}
				return writeNode(cmd.OutOrStdout(), desc, f.output)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&address, "address", "", "resource address (default: the main subsystem)")
	return cmd
}

// withKernel boots the kernel described by f, runs fn against it and shuts
// it down again.
func (a *app) withKernel(f *bootFlags, fn func(runtimepkg.KernelServices) error) (err error) {
	opts, err := a.createOptions(f)
	if err != nil {
		return err
	}
	session, err := a.session()
	if err != nil {
		return err
	}
	services, err := session.Create(opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, services.Shutdown())
	}()

	if !services.IsSuccessfulBoot() {
		return fmt.Errorf("kerneltest: boot of %s failed: %w", services.ContainerName(), services.BootError())
	}
	return fn(services)
}

func (a *app) createOptions(f *bootFlags) (runtimepkg.CreateOptions, error) {
	schema, err := declarative.Load(f.schema)
	if err != nil {
		return runtimepkg.CreateOptions{}, err
	}
	if f.subsystem == "" {
		if len(schema.Subsystems) == 0 {
			return runtimepkg.CreateOptions{}, fmt.Errorf("kerneltest: schema %s declares no subsystem", f.schema)
		}
		f.subsystem = schema.Subsystems[0].Name
	}

	opts := runtimepkg.CreateOptions{
		TestName:          "kerneltest-cli",
		MainSubsystemName: f.subsystem,
		MainExtension:     schema.Extension(),
	}

	if f.boot != "" {
		parser, err := format.Lookup(a.conf.Format)
		if err != nil {
			return runtimepkg.CreateOptions{}, err
		}
		data, err := os.ReadFile(f.boot)
		if err != nil {
			return runtimepkg.CreateOptions{}, fmt.Errorf("kerneltest: read boot log: %w", err)
		}
		ops, err := parser.Unmarshal(data)
		if err != nil {
			return runtimepkg.CreateOptions{}, fmt.Errorf("kerneltest: parse boot log %s: %w", f.boot, err)
		}
		opts.BootOperations = ops
	}

	if f.legacy != "" {
		version, err := model.ParseVersion(f.legacy)
		if err != nil {
			return runtimepkg.CreateOptions{}, err
		}
		opts.LegacyModelVersion = &version
	}
	return opts, nil
}

func writeNode(w io.Writer, n *dmr.Node, output string) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(n); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		data, err := jsoncodec.MarshalIndent(n, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("kerneltest: unknown output %q", output)
	}
}

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the boot log formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range format.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
