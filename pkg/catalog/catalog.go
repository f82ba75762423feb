// Package catalog declares the quota windows of a venue and what each endpoint
// costs against them. Catalogs are loaded once at startup and never change.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"turnstile/internal/ratelimit"
	"turnstile/pkg/core"
)

// BodyEncoding selects where a call's parameters travel.
type BodyEncoding string

const (
	// EncodingQuery sends parameters in the query string.
	EncodingQuery BodyEncoding = "query"
	// EncodingJSON sends parameters as a JSON object body.
	EncodingJSON BodyEncoding = "json"
)

// Spec is the file form of a catalog.
type Spec struct {
	Venue     string         `yaml:"venue" validate:"required"`
	BaseURL   string         `yaml:"base_url" validate:"required,url"`
	Sandbox   string         `yaml:"sandbox_url" validate:"omitempty,url"`
	Windows   []WindowSpec   `yaml:"windows" validate:"required,min=1,dive"`
	Endpoints []EndpointSpec `yaml:"endpoints" validate:"required,min=1,dive"`
}

// WindowSpec declares one quota window.
type WindowSpec struct {
	ID       string        `yaml:"id" validate:"required"`
	Capacity int64         `yaml:"capacity" validate:"gt=0"`
	Duration time.Duration `yaml:"duration" validate:"gt=0"`
	Strategy string        `yaml:"strategy" validate:"omitempty,oneof=fixed sliding"`
	// UsageHeader names the response header carrying the venue's count for this window.
	UsageHeader string `yaml:"usage_header"`
}

// EndpointSpec declares one endpoint and its cost.
type EndpointSpec struct {
	ID         string        `yaml:"id" validate:"required"`
	Method     string        `yaml:"method" validate:"required,oneof=GET POST PUT DELETE"`
	Path       string        `yaml:"path" validate:"required,startswith=/"`
	Category   core.Category `yaml:"category" validate:"required,oneof=market_data order account"`
	Private    bool          `yaml:"private"`
	Idempotent *bool         `yaml:"idempotent"`
	Cacheable  bool          `yaml:"cacheable"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"min=0"`
	Encoding   BodyEncoding  `yaml:"encoding" validate:"omitempty,oneof=query json"`
	Costs      []core.Charge `yaml:"costs" validate:"required,min=1,dive"`
}

// Endpoint is a registered endpoint.
type Endpoint struct {
	ID         string
	Method     string
	Path       string
	Category   core.Category
	Private    bool
	Idempotent bool
	Cacheable  bool
	CacheTTL   time.Duration
	Encoding   BodyEncoding
	cost       core.EndpointCost
}

// Cost returns what one call to the endpoint consumes.
func (e *Endpoint) Cost() core.EndpointCost {
	c := e.cost
	c.Charges = append([]core.Charge(nil), e.cost.Charges...)
	return c
}

// Catalog maps endpoint ids to their costs for one venue.
type Catalog struct {
	venue     string
	baseURL   string
	sandbox   string
	windows   []WindowSpec
	endpoints map[string]*Endpoint
}

var validate = validator.New()

// Parse decodes and validates a YAML catalog. Every endpoint cost must reference a
// declared window and fit its capacity.
func Parse(data []byte) (*Catalog, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(spec)
}

// Load reads a catalog from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// MustParse is Parse for catalogs compiled into the binary.
func MustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a Catalog from a Spec.
func New(spec Spec) (*Catalog, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c := &Catalog{
		venue:     spec.Venue,
		baseURL:   spec.BaseURL,
		sandbox:   spec.Sandbox,
		endpoints: make(map[string]*Endpoint, len(spec.Endpoints)),
	}

	capacity := make(map[string]int64, len(spec.Windows))
	for _, w := range spec.Windows {
		if _, dup := capacity[w.ID]; dup {
			return nil, fmt.Errorf("duplicate window %q", w.ID)
		}
		capacity[w.ID] = w.Capacity
		c.windows = append(c.windows, w)
	}

	for _, es := range spec.Endpoints {
		if _, dup := c.endpoints[es.ID]; dup {
			return nil, fmt.Errorf("duplicate endpoint %q", es.ID)
		}
		ep := &Endpoint{
			ID:         es.ID,
			Method:     es.Method,
			Path:       es.Path,
			Category:   es.Category,
			Private:    es.Private,
			Idempotent: es.Method == http.MethodGet,
			Cacheable:  es.Cacheable,
			CacheTTL:   es.CacheTTL,
			Encoding:   es.Encoding,
			cost: core.EndpointCost{
				Endpoint: es.ID,
				Category: es.Category,
				Charges:  append([]core.Charge(nil), es.Costs...),
			},
		}
		if es.Idempotent != nil {
			ep.Idempotent = *es.Idempotent
		}
		if ep.Encoding == "" {
			ep.Encoding = EncodingQuery
		}
		for _, ch := range es.Costs {
			limit, ok := capacity[ch.Window]
			if !ok {
				return nil, fmt.Errorf("endpoint %s: unknown window %q", es.ID, ch.Window)
			}
			if units := ep.cost.Units(ch.Window); units > limit {
				return nil, fmt.Errorf("endpoint %s: %w: %d units on %s (capacity %d)",
					es.ID, core.ErrCostExceedsCapacity, units, ch.Window, limit)
			}
		}
		c.endpoints[es.ID] = ep
	}
	return c, nil
}

// Venue returns the venue name the catalog describes.
func (c *Catalog) Venue() string {
	return c.venue
}

// BaseURL returns the production or sandbox base URL.
func (c *Catalog) BaseURL(sandbox bool) string {
	if sandbox && c.sandbox != "" {
		return c.sandbox
	}
	return c.baseURL
}

// CostOf returns the cost of an endpoint, or an error wrapping core.ErrUnknownEndpoint.
func (c *Catalog) CostOf(endpointID string) (core.EndpointCost, error) {
	ep, ok := c.endpoints[endpointID]
	if !ok {
		return core.EndpointCost{}, fmt.Errorf("%w: %s", core.ErrUnknownEndpoint, endpointID)
	}
	return ep.Cost(), nil
}

// Endpoint looks up a registered endpoint.
func (c *Catalog) Endpoint(endpointID string) (*Endpoint, bool) {
	ep, ok := c.endpoints[endpointID]
	return ep, ok
}

// Endpoints returns every endpoint sorted by id.
func (c *Catalog) Endpoints() []*Endpoint {
	out := make([]*Endpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Windows returns the declared windows in file order.
func (c *Catalog) Windows() []WindowSpec {
	return append([]WindowSpec(nil), c.windows...)
}

// UsageHeader returns the usage header declared for a window.
func (c *Catalog) UsageHeader(windowID string) string {
	for _, w := range c.windows {
		if w.ID == windowID {
			return w.UsageHeader
		}
	}
	return ""
}

// WindowConfigs converts the declared windows for the limiter.
func (c *Catalog) WindowConfigs() ([]ratelimit.WindowConfig, error) {
	out := make([]ratelimit.WindowConfig, 0, len(c.windows))
	for _, w := range c.windows {
		strategy, err := ratelimit.ParseStrategy(w.Strategy)
		if err != nil {
			return nil, err
		}
		out = append(out, ratelimit.WindowConfig{
			ID:       w.ID,
			Capacity: w.Capacity,
			Duration: w.Duration,
			Strategy: strategy,
		})
	}
	return out, nil
}

// NewLimiter builds a limiter over the catalog's windows and checks every endpoint
// still fits after margin scaling.
func (c *Catalog) NewLimiter(margin float64, opts ...ratelimit.Option) (*ratelimit.Limiter, error) {
	configs, err := c.WindowConfigs()
	if err != nil {
		return nil, err
	}
	l, err := ratelimit.New(configs, margin, opts...)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, ep := range c.Endpoints() {
		errs = append(errs, l.Validate(ep.cost))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return l, nil
}
