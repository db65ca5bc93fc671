package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shop-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "shop-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "shop-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderTopic != "" {
		t.Errorf("expected notifications disabled by default, got topic %q", cfg.PubSub.OrderTopic)
	}
	if cfg.Shop.Currency != "vnd" {
		t.Errorf("expected vnd currency, got %s", cfg.Shop.Currency)
	}
	if cfg.Shop.DeliveryCharge != 5000 {
		t.Errorf("expected delivery charge 5000, got %d", cfg.Shop.DeliveryCharge)
	}
	if cfg.Shop.Location == nil || cfg.Shop.Location.String() != "Asia/Ho_Chi_Minh" {
		t.Errorf("expected shop location Asia/Ho_Chi_Minh, got %v", cfg.Shop.Location)
	}
	if cfg.Idempotency.Header != defaultIdempotencyKey {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != "storefront" {
		t.Errorf("unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.Storage.MaxUploads != 5 {
		t.Errorf("expected 5 image uploads, got %d", cfg.Storage.MaxUploads)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":           "9090",
		"API_SERVER_WRITE_TIMEOUT":  "25s",
		"API_FIREBASE_PROJECT_ID":   "shop-prod",
		"API_FIRESTORE_PROJECT_ID":  "shop-db",
		"API_STORAGE_IMAGES_BUCKET": "shop-images",
		"API_PUBSUB_ORDER_TOPIC":    "orders",
		"API_STRIPE_SECRET_KEY":     "sm://stripe/secret",
		"API_ADMIN_TOKEN_SECRET":    "secret://admin/token",
		"API_SHOP_DELIVERY_CHARGE":  "15000",
		"API_SHOP_TIMEZONE":         "UTC",
		"API_METRICS_ENABLED":       "off",
		"API_IDEMPOTENCY_TTL":       "2h",
	}
	secrets := map[string]string{
		"secret://stripe/secret": "sk_test_123",
		"secret://admin/token":   "admin-signing-key\n",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "shop-db" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Stripe.APIKey != "sk_test_123" {
		t.Errorf("expected resolved stripe key, got %q", cfg.Stripe.APIKey)
	}
	if cfg.Admin.TokenSecret != "admin-signing-key" {
		t.Errorf("expected trimmed admin secret, got %q", cfg.Admin.TokenSecret)
	}
	if cfg.Shop.DeliveryCharge != 15000 {
		t.Errorf("expected delivery charge override, got %d", cfg.Shop.DeliveryCharge)
	}
	if cfg.Shop.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Shop.Location)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("expected metrics disabled")
	}
	if cfg.PubSub.OrderTopic != "orders" {
		t.Errorf("expected order topic, got %q", cfg.PubSub.OrderTopic)
	}
	if cfg.Idempotency.TTL != 2*time.Hour {
		t.Errorf("expected idempotency ttl override, got %s", cfg.Idempotency.TTL)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shop-dev",
		"API_STRIPE_SECRET_KEY":   "secret://stripe/secret",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://stripe/secret" {
		t.Fatalf("unexpected ref %q", secretErr.Ref)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_SHOP_TIMEZONE":       "Mars/Olympus",
		"API_STORAGE_MAX_UPLOADS": "0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	fields := map[string]bool{}
	for _, f := range validationErr.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Shop.Timezone", "Firebase.ProjectID", "Firestore.ProjectID", "Storage.MaxUploads"} {
		if !fields[want] {
			t.Errorf("expected %s in validation fields, got %v", want, validationErr.Fields())
		}
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_FIREBASE_PROJECT_ID=from-file\nexport API_SERVER_PORT=\"7070\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" {
		t.Errorf("expected project from .env, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win over .env, got %s", cfg.Server.Port)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "p"}),
	)
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
