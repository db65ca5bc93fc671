package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/services"
)

const maxDashboardLimit = 50

// DashboardHandlers serves the admin dashboard read models.
type DashboardHandlers struct {
	authn     *auth.Authenticator
	dashboard services.DashboardService
}

// NewDashboardHandlers constructs dashboard handlers.
func NewDashboardHandlers(authn *auth.Authenticator, dashboard services.DashboardService) *DashboardHandlers {
	return &DashboardHandlers{authn: authn, dashboard: dashboard}
}

// Routes registers the /dashboard endpoints.
func (h *DashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(requireRoles(h.authn, auth.RoleAdmin, auth.RoleStaff))
	r.Get("/", h.summary)
	r.Get("/top-sellers", h.topSellers)
	r.Get("/top-rated", h.topRated)
}

type productStockPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SoLuong int    `json:"soLuong"`
}

type productSalesPayload struct {
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Image     string `json:"image,omitempty"`
	UnitsSold int    `json:"unitsSold"`
}

type productRatingPayload struct {
	Name          string  `json:"name"`
	Category      string  `json:"category,omitempty"`
	Image         string  `json:"image,omitempty"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

func (h *DashboardHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		serviceUnavailable(ctx, w, "dashboard")
		return
	}
	summary, err := h.dashboard.Summary(ctx)
	if err != nil {
		writeStorageError(ctx, w, "dashboard_failed", "failed to build dashboard", err)
		return
	}
	products := make([]productStockPayload, 0, len(summary.Products))
	for _, p := range summary.Products {
		products = append(products, productStockPayload{ID: p.ID, Name: p.Name, SoLuong: p.SoLuong})
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"totalUsers":         summary.TotalUsers,
		"productsByCategory": summary.ProductsByCategory,
		"totalSales":         summary.TotalSales,
		"totalOrders":        summary.TotalOrders,
		"ordersByStatus":     summary.OrdersByStatus,
		"products":           products,
	})
}

func (h *DashboardHandlers) topSellers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		serviceUnavailable(ctx, w, "dashboard")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	sellers, err := h.dashboard.TopSellers(ctx, limit)
	if err != nil {
		writeStorageError(ctx, w, "dashboard_failed", "failed to rank products", err)
		return
	}
	out := make([]productSalesPayload, 0, len(sellers))
	for _, s := range sellers {
		out = append(out, productSalesPayload{Name: s.Name, Category: s.Category, Image: s.Image, UnitsSold: s.UnitsSold})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"products": out})
}

func (h *DashboardHandlers) topRated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		serviceUnavailable(ctx, w, "dashboard")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rated, err := h.dashboard.TopRated(ctx, limit)
	if err != nil {
		writeStorageError(ctx, w, "dashboard_failed", "failed to rank products", err)
		return
	}
	out := make([]productRatingPayload, 0, len(rated))
	for _, p := range rated {
		out = append(out, productRatingPayload{
			Name:          p.Name,
			Category:      p.Category,
			Image:         p.Image,
			AverageRating: p.AverageRating,
			ReviewCount:   p.ReviewCount,
		})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"products": out})
}

// parseLimit reads ?limit=; zero means the service default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxDashboardLimit {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_limit", "limit must be between 1 and 50", http.StatusBadRequest))
		return 0, false
	}
	return limit, true
}
