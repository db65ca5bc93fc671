package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/services"
)

const (
	maxProductBodySize   = 64 * 1024
	maxProductUploadSize = 25 << 20
	multipartMemory      = 8 << 20
	productImagesField   = "images"
	defaultMaxImageFiles = 5
)

// ProductHandlers exposes the public catalog and admin product management.
type ProductHandlers struct {
	authn     *auth.Authenticator
	catalog   services.CatalogService
	maxImages int
}

// NewProductHandlers constructs product handlers. maxImages caps files per upload; zero uses 5.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService, maxImages int) *ProductHandlers {
	if maxImages <= 0 {
		maxImages = defaultMaxImageFiles
	}
	return &ProductHandlers{authn: authn, catalog: catalog, maxImages: maxImages}
}

// Routes registers the /product endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/list", h.listProducts)
	r.Get("/bestseller", h.listBestsellers)
	r.Get("/single/{id}", h.getProduct)

	r.Group(func(admin chi.Router) {
		admin.Use(requireRoles(h.authn, auth.RoleAdmin, auth.RoleStaff))
		admin.Post("/add", h.createProduct)
		admin.Post("/remove", h.deleteProduct)
		admin.Put("/update/{id}", h.updateProduct)
	})
}

// productFields is the JSON form of a product write. Numeric and boolean fields also accept the
// string values sent by form-encoded admin clients.
type productFields struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	ThongTin    *string   `json:"thongTin"`
	ThuongHieu  *string   `json:"thuongHieu"`
	Category    *string   `json:"category"`
	Price       *flexInt  `json:"price"`
	GiaNhap     *flexInt  `json:"giaNhap"`
	GiaGoc      *flexInt  `json:"giaGoc"`
	SoLuong     *flexInt  `json:"soLuong"`
	Bestseller  *flexBool `json:"bestseller"`
	Image       imageList `json:"image"`
}

type productIDRequest struct {
	ID string `json:"id"`
}

type productPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ThongTin    string   `json:"thongTin"`
	ThuongHieu  string   `json:"thuongHieu"`
	Category    string   `json:"category"`
	Price       int64    `json:"price"`
	GiaNhap     int64    `json:"giaNhap"`
	GiaGoc      int64    `json:"giaGoc"`
	SoLuong     int      `json:"soLuong"`
	Bestseller  bool     `json:"bestseller"`
	Image       []string `json:"image"`
	Date        string   `json:"date"`
}

func newProductPayload(p services.Product) productPayload {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		ThongTin:    p.ThongTin,
		ThuongHieu:  p.ThuongHieu,
		Category:    p.Category,
		Price:       p.Price,
		GiaNhap:     p.GiaNhap,
		GiaGoc:      p.GiaGoc,
		SoLuong:     p.SoLuong,
		Bestseller:  p.Bestseller,
		Image:       images,
		Date:        formatTime(p.Date),
	}
}

func newProductPayloads(products []services.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, p := range products {
		out = append(out, newProductPayload(p))
	}
	return out
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"products": newProductPayloads(products)})
}

func (h *ProductHandlers) listBestsellers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	products, err := h.catalog.ListBestsellers(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"products": newProductPayloads(products)})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"product": newProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}

	var (
		fields productFields
		images []services.ImageUpload
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		form, ok := h.parseProductForm(w, r)
		if !ok {
			return
		}
		defer func() { _ = form.RemoveAll() }()
		fields = fieldsFromForm(form)
		files := form.File[productImagesField]
		if len(files) > h.maxImages {
			httpx.WriteError(ctx, w, httpx.NewError("too_many_images", fmt.Sprintf("at most %d images are allowed", h.maxImages), http.StatusBadRequest))
			return
		}
		opened, closeAll, err := openImages(files)
		defer closeAll()
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_image", err.Error(), http.StatusBadRequest))
			return
		}
		images = opened
	} else if !decodeJSONBody(w, r, maxProductBodySize, &fields) {
		return
	}

	cmd := services.CreateProductCommand{
		Name:        deref(fields.Name),
		Description: deref(fields.Description),
		ThongTin:    deref(fields.ThongTin),
		ThuongHieu:  deref(fields.ThuongHieu),
		Category:    deref(fields.Category),
		Price:       fields.Price.value(),
		GiaNhap:     fields.GiaNhap.value(),
		GiaGoc:      fields.GiaGoc.value(),
		SoLuong:     int(fields.SoLuong.value()),
		Bestseller:  fields.Bestseller.value(),
		ImageURLs:   fields.Image,
		Images:      images,
	}
	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "Product added",
		"product": newProductPayload(product),
	})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var fields productFields
	if !decodeJSONBody(w, r, maxProductBodySize, &fields) {
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "id")),
		Name:        nonBlank(fields.Name),
		Description: nonBlank(fields.Description),
		ThongTin:    nonBlank(fields.ThongTin),
		ThuongHieu:  nonBlank(fields.ThuongHieu),
		Category:    nonBlank(fields.Category),
		Price:       fields.Price.ptr(),
		GiaNhap:     fields.GiaNhap.ptr(),
		GiaGoc:      fields.GiaGoc.ptr(),
		Bestseller:  fields.Bestseller.ptr(),
		ImageURLs:   fields.Image,
	}
	if fields.SoLuong != nil {
		qty := int(fields.SoLuong.value())
		cmd.SoLuong = &qty
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "Product updated",
		"product": newProductPayload(product),
	})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req productIDRequest
	if !decodeJSONBody(w, r, maxProductBodySize, &req) {
		return
	}
	if err := h.catalog.DeleteProduct(ctx, strings.TrimSpace(req.ID)); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Product removed"})
}

func (h *ProductHandlers) parseProductForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxProductUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds allowed size", http.StatusRequestEntityTooLarge))
			return nil, false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid multipart form", http.StatusBadRequest))
		return nil, false
	}
	return r.MultipartForm, true
}

func fieldsFromForm(form *multipart.Form) productFields {
	value := func(key string) *string {
		values, ok := form.Value[key]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}
	number := func(key string) *flexInt {
		raw := value(key)
		if raw == nil {
			return nil
		}
		n := parseFlexInt(*raw)
		return &n
	}
	fields := productFields{
		Name:        value("name"),
		Description: value("description"),
		ThongTin:    value("thongTin"),
		ThuongHieu:  value("thuongHieu"),
		Category:    value("category"),
		Price:       number("price"),
		GiaNhap:     number("giaNhap"),
		GiaGoc:      number("giaGoc"),
		SoLuong:     number("soLuong"),
		Image:       form.Value["image"],
	}
	if raw := value("bestseller"); raw != nil {
		b := flexBool(parseBool(*raw))
		fields.Bestseller = &b
	}
	return fields
}

func openImages(files []*multipart.FileHeader) ([]services.ImageUpload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	images := make([]services.ImageUpload, 0, len(files))
	for _, fh := range files {
		contentType := strings.TrimSpace(fh.Header.Get("Content-Type"))
		if !strings.HasPrefix(contentType, "image/") {
			return nil, closeAll, fmt.Errorf("%s is not an image", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		images = append(images, services.ImageUpload{
			FileName:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Body:        f,
		})
	}
	return images, closeAll, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_id", "product id is malformed", http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUploadUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("upload_unavailable", "image uploads are not configured", http.StatusServiceUnavailable))
	default:
		writeStorageError(ctx, w, "catalog_failed", "failed to process product", err)
	}
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (f *flexInt) value() int64 {
	if f == nil {
		return 0
	}
	return int64(*f)
}

func (f *flexInt) ptr() *int64 {
	if f == nil {
		return nil
	}
	v := int64(*f)
	return &v
}

// parseFlexInt maps unparsable form values to -1 so validation rejects them.
func parseFlexInt(raw string) flexInt {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return -1
	}
	return flexInt(n)
}

// flexBool decodes a JSON bool or the strings "true"/"false".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = flexBool(parseBool(s))
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

func (b *flexBool) value() bool {
	return b != nil && bool(*b)
}

func (b *flexBool) ptr() *bool {
	if b == nil {
		return nil
	}
	v := bool(*b)
	return &v
}

func parseBool(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// imageList accepts either one URL or an array of URLs.
type imageList []string

func (l *imageList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = imageList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if list == nil {
		list = []string{}
	}
	*l = list
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nonBlank drops empty strings so partial updates never clear a field.
func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
