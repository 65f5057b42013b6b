package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	caveclient "github.com/sumiya-kuroda/CAVEclient"
	"github.com/sumiya-kuroda/CAVEclient/chunkedgraph"
)

func parseID(kind, raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an unsigned 64-bit integer", kind, raw)
	}
	return id, nil
}

func parseBoundsFlag(raw string) ([]chunkedgraph.CallOption, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	b, err := chunkedgraph.ParseBounds(raw)
	if err != nil {
		return nil, err
	}
	return []chunkedgraph.CallOption{chunkedgraph.WithBounds(b)}, nil
}

// requestContext tags every request of one command with a fresh
// correlation id.
func requestContext(ctx context.Context) context.Context {
	return chunkedgraph.WithCorrelationID(ctx, chunkedgraph.NewCorrelationID())
}

// emit writes value in the configured output format.
func (c *cli) emit(cmd *cobra.Command, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if c.cfg.Output == caveclient.OutputYAML {
		data, err = jsonToYAML(data)
		if err != nil {
			return err
		}
	} else {
		data = append(data, '\n')
	}
	c.subsystem("output").Debug("cli.output.write", "format", c.cfg.Output, "size", humanize.Bytes(uint64(len(data))))
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping key
// order and untouched nested values.
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("convert output to yaml: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("encode yaml output: %w", err)
	}
	return out, nil
}

// blockStyle drops the flow and quoting styles inherited from JSON. The
// encoder still quotes strings that would read back as another type.
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode {
		n.Style &^= yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle
	}
	for _, child := range n.Content {
		blockStyle(child)
	}
}

func newRootIDCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "root <supervoxel-id>",
		Short: "Look up the root object of a supervoxel",
		Args:  cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			sv, err := parseID("supervoxel id", args[0])
			if err != nil {
				return err
			}
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			root, err := cg.RootID(requestContext(cmd.Context()), sv)
			if err != nil {
				return err
			}
			return c.emit(cmd, map[string]uint64{"supervoxel_id": sv, "root_id": root})
		}),
	}
}

func newLeavesCommand(c *cli) *cobra.Command {
	var bounds string
	cmd := &cobra.Command{
		Use:   "leaves <root-id>",
		Short: "List the supervoxels under a root",
		Args:  cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			root, err := parseID("root id", args[0])
			if err != nil {
				return err
			}
			opts, err := parseBoundsFlag(bounds)
			if err != nil {
				return err
			}
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			leaves, err := cg.Leaves(requestContext(cmd.Context()), root, opts...)
			if err != nil {
				return err
			}
			return c.emit(cmd, leaves)
		}),
	}
	cmd.Flags().StringVar(&bounds, "bounds", "", "bounding box minx-maxx_miny-maxy_minz-maxz")
	return cmd
}

func newChildrenCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "children <node-id>",
		Short: "List the direct children of a node",
		Args:  cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			node, err := parseID("node id", args[0])
			if err != nil {
				return err
			}
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			children, err := cg.Children(requestContext(cmd.Context()), node)
			if err != nil {
				return err
			}
			return c.emit(cmd, children)
		}),
	}
}

func newMergeLogCommand(c *cli) *cobra.Command {
	return newHistoryCommand(c, "merge-log", "Print the merge history of a root",
		func(cg *chunkedgraph.Client) func(context.Context, uint64) ([]json.RawMessage, error) {
			return cg.MergeLog
		})
}

func newChangeLogCommand(c *cli) *cobra.Command {
	return newHistoryCommand(c, "change-log", "Print the edit history of a root",
		func(cg *chunkedgraph.Client) func(context.Context, uint64) ([]json.RawMessage, error) {
			return cg.ChangeLog
		})
}

func newHistoryCommand(c *cli, use, short string, pick func(*chunkedgraph.Client) func(context.Context, uint64) ([]json.RawMessage, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <root-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			root, err := parseID("root id", args[0])
			if err != nil {
				return err
			}
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := pick(cg)(requestContext(cmd.Context()), root)
			if err != nil {
				return err
			}
			return c.emit(cmd, entries)
		}),
	}
}

func newContactsCommand(c *cli) *cobra.Command {
	var (
		bounds   string
		partners bool
	)
	cmd := &cobra.Command{
		Use:   "contacts <root-id>",
		Short: "List contact sites of a root keyed by partner id",
		Args:  cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			root, err := parseID("root id", args[0])
			if err != nil {
				return err
			}
			opts, err := parseBoundsFlag(bounds)
			if err != nil {
				return err
			}
			opts = append(opts, chunkedgraph.WithPartners(partners))
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			sites, err := cg.ContactSites(requestContext(cmd.Context()), root, opts...)
			if err != nil {
				return err
			}
			return c.emit(cmd, sites)
		}),
	}
	cmd.Flags().StringVar(&bounds, "bounds", "", "bounding box minx-maxx_miny-maxy_minz-maxz")
	cmd.Flags().BoolVar(&partners, "partners", false, "resolve partner root ids")
	return cmd
}

func newCloudVolumePathCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cloudvolume-path",
		Short: "Print the storage path of the table (no request is made)",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			path, err := cg.CloudVolumePath()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		}),
	}
}

type endpointsReport struct {
	Server    string            `json:"server"`
	Table     string            `json:"table,omitempty"`
	Version   int               `json:"api_version"`
	Endpoints map[string]string `json:"endpoints"`
}

func newEndpointsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "Print the resolved API version and endpoint templates",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(cmd, endpointsReport{
				Server:    cg.ServerAddress(),
				Table:     cg.TableName(),
				Version:   cg.Version(),
				Endpoints: cg.Endpoints(),
			})
		}),
	}
}
