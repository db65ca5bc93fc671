package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultVersion  = "latest"
	metricNamespace = "github.com/khotaikhoan/storefront/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager and caches the values for
// the lifetime of the process.
//
// Reference format: secret://<name>[?version=<v>&project=<p>].
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type fetcherConfig struct {
	logger     *zap.Logger
	projectID  string
	meter      metric.Meter
	client     secretManagerClient
	clientOpts []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithProject sets the project used when a reference has no project override.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher. The Secret Manager client is only created when none is injected.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		projectID: cfg.projectID,
		logger:    cfg.logger,
		cache:     make(map[string]string),
	}

	var err error
	f.latency, err = meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}
	f.cacheHits, err = meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}

	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", errors.New("secrets: fetcher is nil")
	}
	start := time.Now()

	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	projectID := parsed.Project
	if projectID == "" {
		projectID = f.projectID
	}
	if projectID == "" {
		return "", fmt.Errorf("secrets: no project configured for %s", maskReference(parsed.Canonical))
	}

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, parsed.Secret, parsed.Version)

	f.mu.RLock()
	value, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.Canonical))))
		}
		f.recordLatency(ctx, start, "cache")
		return value, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		f.recordLatency(ctx, start, "error")
		return "", fmt.Errorf("secrets: access %s: %w", maskReference(parsed.Canonical), err)
	}
	if resp == nil || resp.GetPayload() == nil {
		f.recordLatency(ctx, start, "error")
		return "", fmt.Errorf("secrets: empty payload for %s", maskReference(parsed.Canonical))
	}

	value = string(resp.GetPayload().GetData())
	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()

	f.recordLatency(ctx, start, "remote")
	f.logger.Debug("secrets: resolved", zap.String("ref", maskReference(parsed.Canonical)))
	return value, nil
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	ms := float64(time.Since(start).Microseconds()) / 1000
	f.latency.Record(ctx, ms, metric.WithAttributes(attribute.String("source", source)))
}

type parsedReference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return parsedReference{}, errors.New("secrets: missing secret name")
	}
	// Secret Manager ids cannot contain slashes; nested paths map to dashes.
	secret = strings.ReplaceAll(secret, "/", "-")

	values := u.Query()
	version := strings.TrimSpace(values.Get("version"))
	if version == "" {
		version = defaultVersion
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	return parsedReference{
		Canonical: canonical.String(),
		Secret:    secret,
		Version:   version,
		Project:   strings.TrimSpace(values.Get("project")),
	}, nil
}

func maskReference(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}
