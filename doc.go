// Package caveclient bundles the chunked-graph client with the configuration
// and telemetry plumbing used by the cgclient command.
//
// Most programs only need the chunkedgraph package. This package adds the
// shared rules for locating credentials, loading endpoint registry
// overrides and exporting traces and metrics:
//
//	cfg := caveclient.Config{
//		Server: "https://minnie.microns-daf.com",
//		Table:  "minnie65_public",
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//	cli, err := caveclient.NewClient(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	path, err := cli.CloudVolumePath()
//
// # Configuration
//
// The CLI reads $HOME/.caveclient/config.yaml by default
// (CAVECLIENT_CONFIG_DIR moves the directory). Tokens come from --token,
// the CAVE_TOKEN environment variable, or a secret file under
// ~/.cloudvolume/secrets.
//
// # Telemetry
//
// SetupTelemetry starts an OTLP trace exporter and a Prometheus scrape
// endpoint. Requests issued by chunkedgraph clients are traced through the
// providers it returns.
package caveclient
