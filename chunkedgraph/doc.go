// Package chunkedgraph is a client for the chunked-graph segmentation
// service: a versioned mapping of supervoxels to root objects with a
// history of merges and splits.
//
// A Client resolves endpoint templates for one API version when it is
// built and then turns each call into an HTTP request:
//
//	cli, err := chunkedgraph.New(
//		chunkedgraph.WithServerAddress("https://minnie.microns-daf.com"),
//		chunkedgraph.WithTable("minnie65_public"),
//		chunkedgraph.WithAuth(auth.Token(tok)),
//	)
//	if err != nil {
//		return err
//	}
//	root, err := cli.RootID(ctx, 88946092073583016)
//
// Errors are typed: *ConfigurationError for unusable settings,
// *TemplateError for endpoint templates that cannot be expanded, *HTTPError
// for transport failures and non-2xx responses, and *DecodeError for
// payloads of the wrong shape. Calls never return partial results.
//
// Requests carry an X-Correlation-Id header when the context was prepared
// with WithCorrelationID, and are traced and counted through OpenTelemetry.
package chunkedgraph
