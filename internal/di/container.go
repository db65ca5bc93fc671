package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khotaikhoan/storefront/internal/payments"
	"github.com/khotaikhoan/storefront/internal/platform/config"
	"github.com/khotaikhoan/storefront/internal/platform/storage"
	"github.com/khotaikhoan/storefront/internal/repositories"
	"github.com/khotaikhoan/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart      services.CartService
	Orders    services.OrderService
	Reviews   services.ReviewService
	Catalog   services.CatalogService
	Dashboard services.DashboardService
	Users     services.UserService
}

// Collaborators are the optional integrations assembled by the entrypoint. Nil members disable
// the matching feature: no Payments means Stripe checkout answers 503, no Images means uploads are
// refused, no Notifier means confirmations are skipped.
type Collaborators struct {
	Payments payments.Provider
	Images   *storage.ImageUploader
	Notifier services.OrderNotifier
	Metrics  services.OrderMetrics
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Clock    func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, collab Collaborators) (Services, error) {
	var svc Services
	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Logger:     collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Users:          reg.Users(),
		Payments:       collab.Payments,
		Notifier:       collab.Notifier,
		Metrics:        collab.Metrics,
		Clock:          clock,
		Logger:         collab.Logger,
		Currency:       cfg.Shop.Currency,
		DeliveryCharge: cfg.Shop.DeliveryCharge,
		Location:       cfg.Shop.Location,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Orders: reg.Orders(),
		Clock:  clock,
		Logger: collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	var images services.ImageStore
	if collab.Images != nil {
		images = imageStore{uploader: collab.Images}
	}
	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:  reg.Products(),
		Images:    images,
		MaxImages: cfg.Storage.MaxUploads,
		Clock:     clock,
		Logger:    collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	dashboardSvc, err := services.NewDashboardService(services.DashboardServiceDeps{
		Products: reg.Products(),
		Orders:   reg.Orders(),
		Users:    reg.Users(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dashboard service: %w", err)
	}
	svc.Dashboard = dashboardSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Clock:  clock,
		Logger: collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	return svc, nil
}

// imageStore adapts the Cloud Storage uploader to the catalog's ImageStore.
type imageStore struct {
	uploader *storage.ImageUploader
}

func (s imageStore) Upload(ctx context.Context, productID string, uploads []services.ImageUpload) ([]string, error) {
	images := make([]storage.Image, 0, len(uploads))
	for _, u := range uploads {
		images = append(images, storage.Image{
			FileName:    u.FileName,
			ContentType: u.ContentType,
			Size:        u.Size,
			Body:        u.Body,
		})
	}
	return s.uploader.Upload(ctx, productID, images)
}

// Delete ignores URLs that point outside the bucket, e.g. images added by URL.
func (s imageStore) Delete(ctx context.Context, url string) error {
	if err := s.uploader.Delete(ctx, url); err != nil && !errors.Is(err, storage.ErrNotOwnedURL) {
		return err
	}
	return nil
}
