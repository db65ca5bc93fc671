package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShopCurrency    = "vnd"
	defaultDeliveryCharge  = 5000
	defaultShopTimezone    = "Asia/Ho_Chi_Minh"
	defaultIdempotencyKey  = "Idempotency-Key"
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultMetricsNS       = "storefront"
	defaultAdminIssuer     = "storefront-admin"
	defaultMaxImageUploads = 5
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Stripe      StripeConfig
	Admin       AdminConfig
	Shop        ShopConfig
	Idempotency IdempotencyConfig
	Metrics     MetricsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig points at the bucket holding product images. Uploads are disabled when ImagesBucket
// is empty.
type StorageConfig struct {
	ImagesBucket  string
	PublicBaseURL string
	MaxUploads    int
}

// PubSubConfig configures order notification publishing. Publishing is disabled when OrderTopic is
// empty.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// StripeConfig holds the payment gateway secret.
type StripeConfig struct {
	APIKey string
}

// AdminConfig configures HS256 admin console tokens.
type AdminConfig struct {
	TokenSecret string
	Issuer      string
}

// ShopConfig holds storefront constants.
type ShopConfig struct {
	Currency       string
	DeliveryCharge int64
	Timezone       string
	Location       *time.Location
}

// IdempotencyConfig controls the Idempotency-Key middleware.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration from defaults, the .env file, the process environment, the
// explicit env map (highest precedence) and Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ImagesBucket:  stringWithDefault(lookup, "API_STORAGE_IMAGES_BUCKET", ""),
			PublicBaseURL: stringWithDefault(lookup, "API_STORAGE_PUBLIC_BASE_URL", ""),
			MaxUploads:    intWithDefault(lookup, "API_STORAGE_MAX_UPLOADS", defaultMaxImageUploads),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_TOPIC", ""),
		},
		Stripe: StripeConfig{
			APIKey: stringWithDefault(lookup, "API_STRIPE_SECRET_KEY", ""),
		},
		Admin: AdminConfig{
			TokenSecret: stringWithDefault(lookup, "API_ADMIN_TOKEN_SECRET", ""),
			Issuer:      stringWithDefault(lookup, "API_ADMIN_TOKEN_ISSUER", defaultAdminIssuer),
		},
		Shop: ShopConfig{
			Currency:       strings.ToLower(stringWithDefault(lookup, "API_SHOP_CURRENCY", defaultShopCurrency)),
			DeliveryCharge: int64(intWithDefault(lookup, "API_SHOP_DELIVERY_CHARGE", defaultDeliveryCharge)),
			Timezone:       stringWithDefault(lookup, "API_SHOP_TIMEZONE", defaultShopTimezone),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyKey),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Metrics: MetricsConfig{
			Enabled:   boolWithDefault(lookup, "API_METRICS_ENABLED", true),
			Namespace: stringWithDefault(lookup, "API_METRICS_NAMESPACE", defaultMetricsNS),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	secretFields := []*string{
		&cfg.Stripe.APIKey,
		&cfg.Admin.TokenSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	var invalid []string
	if loc, err := time.LoadLocation(cfg.Shop.Timezone); err == nil {
		cfg.Shop.Location = loc
	} else {
		invalid = append(invalid, "Shop.Timezone")
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Shop.Currency == "" {
		missing = append(missing, "Shop.Currency")
	}
	if cfg.Shop.DeliveryCharge < 0 {
		missing = append(missing, "Shop.DeliveryCharge")
	}
	if cfg.Storage.MaxUploads <= 0 {
		missing = append(missing, "Storage.MaxUploads")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
