package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/khotaikhoan/storefront/internal/di"
	"github.com/khotaikhoan/storefront/internal/handlers"
	"github.com/khotaikhoan/storefront/internal/payments"
	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/config"
	pfirestore "github.com/khotaikhoan/storefront/internal/platform/firestore"
	"github.com/khotaikhoan/storefront/internal/platform/idempotency"
	"github.com/khotaikhoan/storefront/internal/platform/jobs"
	"github.com/khotaikhoan/storefront/internal/platform/observability"
	"github.com/khotaikhoan/storefront/internal/platform/requestctx"
	"github.com/khotaikhoan/storefront/internal/platform/secrets"
	"github.com/khotaikhoan/storefront/internal/platform/storage"
	"github.com/khotaikhoan/storefront/internal/repositories"
	firestoreRepo "github.com/khotaikhoan/storefront/internal/repositories/firestore"
)

const (
	shutdownTimeout   = 20 * time.Second
	orderPlaceLimit   = 10
	reviewSubmitLimit = 5
	rateLimitWindow   = time.Minute
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	resolver := &lazySecretResolver{logger: logger.Named("secrets")}
	defer resolver.Close()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}
	eventLogger := observability.NewEventLogger(logger.Named("services"))

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	authn, err := newAuthenticator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise authentication", zap.Error(err))
	}

	collab := di.Collaborators{
		Logger: eventLogger,
	}
	if metrics != nil {
		collab.Metrics = metrics
	}

	var checks []repositories.DependencyCheck

	if bucket := strings.TrimSpace(cfg.Storage.ImagesBucket); bucket != "" {
		uploader, err := storage.NewImageUploader(ctx, bucket, nil, storage.WithPublicBaseURL(cfg.Storage.PublicBaseURL))
		if err != nil {
			logger.Fatal("failed to initialise image uploader", zap.Error(err))
		}
		defer func() {
			if err := uploader.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		collab.Images = uploader
	} else {
		logger.Warn("product image uploads disabled: no images bucket configured")
	}

	if topicID := strings.TrimSpace(cfg.PubSub.OrderTopic); topicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := client.Topic(topicID)
		publisher, err := jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order publisher", zap.Error(err))
		}
		defer publisher.Stop()
		collab.Notifier = publisher
		checks = append(checks, repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topicID)
				}
				return nil
			},
		})
	} else {
		logger.Warn("order notifications disabled: no pubsub topic configured")
	}

	if key := strings.TrimSpace(cfg.Stripe.APIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: payments.StripeLogger(eventLogger),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		collab.Payments = stripeProvider
	} else {
		logger.Warn("card payments disabled: no stripe key configured")
	}

	registry, err := firestoreRepo.NewRegistry(provider, checks...)
	if err != nil {
		logger.Fatal("failed to build repositories", zap.Error(err))
	}
	container, err := di.NewContainer(cfg, registry, collab)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	router := newRouter(cfg, container, authn, metrics, logger, idempotency.NewFirestoreStore(provider))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg config.Config, container *di.Container, authn *auth.Authenticator, metrics *observability.Metrics, logger *zap.Logger, store idempotency.Store) http.Handler {
	svc := container.Services

	idem := idempotency.Middleware(store,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	users := handlers.NewUserHandlers(authn, svc.Users)
	orders := handlers.NewOrderHandlers(authn, svc.Orders,
		handlers.WithOrderIdempotency(idem),
		handlers.WithOrderIdempotencyHeader(cfg.Idempotency.Header),
		handlers.WithOrderRateLimit(orderPlaceLimit, rateLimitWindow, nil),
	)
	reviews := handlers.NewReviewHandlers(authn, svc.Reviews,
		handlers.WithReviewRateLimit(reviewSubmitLimit, rateLimitWindow, nil),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(metrics),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthReporter(container.Repositories.Health()),
		)),
		handlers.WithUserRoutes(users.ProfileRoutes),
		handlers.WithWishlistRoutes(users.WishlistRoutes),
		handlers.WithAddressRoutes(users.AddressRoutes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(authn, svc.Cart).Routes),
		handlers.WithOrderRoutes(orders.Routes),
		handlers.WithReviewRoutes(reviews.Routes),
		handlers.WithProductRoutes(handlers.NewProductHandlers(authn, svc.Catalog, cfg.Storage.MaxUploads).Routes),
		handlers.WithDashboardRoutes(handlers.NewDashboardHandlers(authn, svc.Dashboard).Routes),
	}
	if metrics != nil {
		opts = append(opts, handlers.WithMetricsHandler(metrics.Handler()))
	}
	return handlers.NewRouter(opts...)
}

// newAuthenticator accepts Firebase ID tokens from storefront customers and, when a console secret
// is configured, HS256 admin tokens.
func newAuthenticator(ctx context.Context, cfg config.Config, logger *zap.Logger) (*auth.Authenticator, error) {
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	chain := auth.ChainVerifier{verifier}
	if admin := auth.NewAdminTokenVerifier(cfg.Admin.TokenSecret, cfg.Admin.Issuer); admin != nil {
		chain = append(chain, admin)
	} else {
		logger.Warn("admin console tokens disabled: no token secret configured")
	}
	return auth.NewAuthenticator(chain), nil
}

// lazySecretResolver creates the Secret Manager client on the first secret:// reference so local
// runs with plain values need no credentials.
type lazySecretResolver struct {
	logger *zap.Logger

	once    sync.Once
	fetcher *secrets.Fetcher
	err     error
}

func (r *lazySecretResolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	r.once.Do(func() {
		r.fetcher, r.err = secrets.NewFetcher(ctx,
			secrets.WithLogger(r.logger),
			secrets.WithProject(secretProject()),
			secrets.WithClientOptions(option.WithUserAgent("storefront-api")),
		)
	})
	if r.err != nil {
		return "", r.err
	}
	return r.fetcher.ResolveSecret(ctx, ref)
}

func (r *lazySecretResolver) Close() {
	if r.fetcher == nil {
		return
	}
	if err := r.fetcher.Close(); err != nil {
		r.logger.Warn("secret fetcher close error", zap.Error(err))
	}
}

func secretProject() string {
	if project := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")); project != "" {
		return project
	}
	return strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID"))
}
