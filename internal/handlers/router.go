package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/khotaikhoan/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler

	user      RouteRegistrar
	cart      RouteRegistrar
	wishlist  RouteRegistrar
	address   RouteRegistrar
	orders    RouteRegistrar
	reviews   RouteRegistrar
	products  RouteRegistrar
	dashboard RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the storefront route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string) {
			api.Route(path, func(group chi.Router) {
				if registrar != nil {
					registrar(group)
					return
				}
				registerUnavailable(group, name)
			})
		}

		mount("/user", cfg.user, "user")
		mount("/cart", cfg.cart, "cart")
		mount("/wishlist", cfg.wishlist, "wishlist")
		mount("/address", cfg.address, "address")
		mount("/order", cfg.orders, "order")
		mount("/review", cfg.reviews, "review")
		mount("/product", cfg.products, "product")
		mount("/dashboard", cfg.dashboard, "dashboard")
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

func WithUserRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.user = reg }
}

func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.cart = reg }
}

func WithWishlistRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.wishlist = reg }
}

func WithAddressRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.address = reg }
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = reg }
}

func WithReviewRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.reviews = reg }
}

func WithProductRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.products = reg }
}

func WithDashboardRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.dashboard = reg }
}

func registerUnavailable(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not configured", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}
