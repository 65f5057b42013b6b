package chunkedgraph

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"github.com/sumiya-kuroda/CAVEclient/auth"
	"github.com/sumiya-kuroda/CAVEclient/endpoints"
	"github.com/sumiya-kuroda/CAVEclient/internal/clock"
)

// Default transport tuning for clients built without WithHTTPClient.
const (
	DefaultMaxIdleConns        = 64
	DefaultMaxIdleConnsPerHost = 16
	DefaultIdleConnTimeout     = 90 * time.Second
)

type config struct {
	serverAddress    string
	table            string
	version          Version
	registry         *endpoints.Registry
	auth             auth.HeaderProvider
	defaultTimestamp time.Time
	explicitNow      bool
	clock            clock.Clock
	httpClient       *http.Client
	httpTimeout      time.Duration
	logger           pslog.Base
	tracerProvider   trace.TracerProvider
	meterProvider    metric.MeterProvider
	userAgent        string
}

// Option configures a Client at construction.
type Option func(*config)

// WithServerAddress sets the service base URL. Empty selects
// endpoints.DefaultServerAddress.
func WithServerAddress(addr string) Option {
	return func(c *config) {
		c.serverAddress = strings.TrimSpace(addr)
	}
}

// WithTable binds the chunked-graph table (dataset) name used by every call.
func WithTable(name string) Option {
	return func(c *config) {
		c.table = strings.TrimSpace(name)
	}
}

// WithAPIVersion requests an API version. The default is Latest.
func WithAPIVersion(v Version) Option {
	return func(c *config) {
		c.version = v
	}
}

// WithRegistry replaces the built-in endpoint registry.
func WithRegistry(reg endpoints.Registry) Option {
	return func(c *config) {
		clone := reg.Clone()
		c.registry = &clone
	}
}

// WithAuth sets the provider of the authorization header.
func WithAuth(p auth.HeaderProvider) Option {
	return func(c *config) {
		c.auth = p
	}
}

// WithDefaultTimestamp sets the graph state queried by calls that accept a
// timestamp and were not given one. The zero time clears it.
func WithDefaultTimestamp(t time.Time) Option {
	return func(c *config) {
		c.defaultTimestamp = t
	}
}

// WithExplicitNow makes calls without any timestamp send the client's
// current time instead of letting the server pick its own.
func WithExplicitNow() Option {
	return func(c *config) {
		c.explicitNow = true
	}
}

// WithClock replaces the clock used by WithExplicitNow.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		c.clock = clk
	}
}

// WithHTTPClient supplies the HTTP client used for every request. The client
// is used as-is; WithHTTPTimeout does not apply to it.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *config) {
		if cli != nil {
			c.httpClient = cli
		}
	}
}

// WithHTTPTimeout bounds each request made by the default HTTP client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.httpTimeout = d
		}
	}
}

// WithLogger supplies a logger for request tracing. Passing nil falls back
// to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = strings.TrimSpace(ua)
	}
}
