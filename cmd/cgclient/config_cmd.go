package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	caveclient "github.com/sumiya-kuroda/CAVEclient"
	"github.com/sumiya-kuroda/CAVEclient/endpoints"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cgclient configuration files",
	}
	cmd.AddCommand(newConfigGenCommand(), newConfigRegistryCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var (
		outPath string
		force   bool
		stdout  bool
	)
	defaultOutput := "$HOME/.caveclient/" + caveclient.DefaultConfigFileName
	if path, err := caveclient.DefaultConfigPath(); err == nil {
		defaultOutput = path
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default cgclient configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				path, err := caveclient.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = path
			}
			return writeNewFile(cmd, outPath, data, force)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

func newConfigRegistryCommand() *cobra.Command {
	var (
		outPath string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Write the built-in endpoint registry as YAML for use with --registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := endpoints.Marshal(endpoints.ChunkedGraph())
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return writeNewFile(cmd, outPath, data, force)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output path (defaults to stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	return cmd
}

func writeNewFile(cmd *cobra.Command, path string, data []byte, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file %s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return err
}

type configDefaults struct {
	Server           string `yaml:"server"`
	Table            string `yaml:"table"`
	APIVersion       string `yaml:"api-version"`
	Negotiate        bool   `yaml:"negotiate"`
	TokenFile        string `yaml:"token-file"`
	Registry         string `yaml:"registry"`
	Timestamp        string `yaml:"timestamp"`
	Timeout          string `yaml:"timeout"`
	Output           string `yaml:"output"`
	LogLevel         string `yaml:"log-level"`
	LogOutput        string `yaml:"log-output"`
	WatchInterval    string `yaml:"watch-interval"`
	OTLPEndpoint     string `yaml:"otlp-endpoint"`
	MetricsListen    string `yaml:"metrics-listen"`
	ProfilingMetrics bool   `yaml:"profiling-metrics"`
}

func defaultConfigYAML() ([]byte, error) {
	defaults := configDefaults{
		Server:        endpoints.DefaultServerAddress,
		APIVersion:    "latest",
		Timeout:       "0s",
		Output:        caveclient.DefaultOutput,
		LogLevel:      "none",
		WatchInterval: caveclient.DefaultWatchInterval.String(),
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	header := []byte("# cgclient configuration. Keys mirror the command line flags;\n# CGCLIENT_<KEY> environment variables take precedence over this file.\n")
	return append(header, data...), nil
}
