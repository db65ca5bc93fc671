package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khotaikhoan/storefront/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates missing fields or an invalid price triple.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogInvalidID indicates a malformed product id.
	ErrCatalogInvalidID = errors.New("catalog: invalid product id")
	// ErrCatalogProductNotFound indicates the product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogUploadUnavailable indicates image files were sent but no image store is configured.
	ErrCatalogUploadUnavailable = errors.New("catalog: image upload unavailable")
)

const defaultMaxImages = 5

// CatalogServiceDeps bundles collaborators required to construct a CatalogService.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Images      ImageStore
	MaxImages   int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	images    ImageStore
	maxImages int
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newULID
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	maxImages := deps.MaxImages
	if maxImages <= 0 {
		maxImages = defaultMaxImages
	}
	return &catalogService{
		products:  deps.Products,
		images:    deps.Images,
		maxImages: maxImages,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// CreateProduct validates the fields, uploads image files, then inserts the product. Uploaded
// images are removed again when the insert fails.
func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	product := Product{
		Name:        cleanText(cmd.Name),
		Description: sanitizeMarkup(cmd.Description),
		ThongTin:    sanitizeMarkup(cmd.ThongTin),
		ThuongHieu:  cleanText(cmd.ThuongHieu),
		Category:    cleanText(cmd.Category),
		Price:       cmd.Price,
		GiaNhap:     cmd.GiaNhap,
		GiaGoc:      cmd.GiaGoc,
		SoLuong:     cmd.SoLuong,
		Bestseller:  cmd.Bestseller,
		Date:        s.now(),
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	if len(cmd.Images)+len(cmd.ImageURLs) > s.maxImages {
		return Product{}, fmt.Errorf("%w: at most %d images", ErrCatalogInvalidInput, s.maxImages)
	}
	if len(cmd.Images) > 0 && s.images == nil {
		return Product{}, ErrCatalogUploadUnavailable
	}

	product.ID = s.newID()
	product.Images = cleanURLs(cmd.ImageURLs)
	var uploaded []string
	if len(cmd.Images) > 0 {
		urls, err := s.images.Upload(ctx, product.ID, cmd.Images)
		if err != nil {
			return Product{}, fmt.Errorf("%w: upload images: %v", ErrCatalogInvalidInput, err)
		}
		uploaded = urls
		product.Images = append(product.Images, urls...)
	}

	if err := s.products.Insert(ctx, product); err != nil {
		s.discardImages(ctx, uploaded)
		return Product{}, err
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID, "images": len(product.Images)})
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]Product, error) {
	return s.products.List(ctx, repositories.ProductListFilter{})
}

func (s *catalogService) ListBestsellers(ctx context.Context) ([]Product, error) {
	return s.products.List(ctx, repositories.ProductListFilter{BestsellerOnly: true})
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if !validID(productID) {
		return Product{}, ErrCatalogInvalidID
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapError(err)
	}
	return product, nil
}

// UpdateProduct applies only the supplied fields. The price triple is validated against the
// product as it would look after the update.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	current, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}

	update := repositories.ProductUpdate{
		Name:        cleanPtr(cmd.Name),
		Description: markupPtr(cmd.Description),
		ThongTin:    markupPtr(cmd.ThongTin),
		ThuongHieu:  cleanPtr(cmd.ThuongHieu),
		Category:    cleanPtr(cmd.Category),
		Price:       cmd.Price,
		GiaNhap:     cmd.GiaNhap,
		GiaGoc:      cmd.GiaGoc,
		SoLuong:     cmd.SoLuong,
		Bestseller:  cmd.Bestseller,
		Date:        s.now(),
	}
	if cmd.ImageURLs != nil {
		update.Images = cleanURLs(cmd.ImageURLs)
		if len(update.Images) > s.maxImages {
			return Product{}, fmt.Errorf("%w: at most %d images", ErrCatalogInvalidInput, s.maxImages)
		}
	}
	if err := validateProduct(applyProductUpdate(current, update)); err != nil {
		return Product{}, err
	}

	updated, err := s.products.Update(ctx, current.ID, update)
	if err != nil {
		return Product{}, s.mapError(err)
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{"productId": current.ID})
	return updated, nil
}

// DeleteProduct removes the product and, best effort, its uploaded images.
func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, product.ID); err != nil {
		return s.mapError(err)
	}
	s.discardImages(ctx, product.Images)
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": product.ID})
	return nil
}

func (s *catalogService) discardImages(ctx context.Context, urls []string) {
	if s.images == nil {
		return
	}
	for _, url := range urls {
		if err := s.images.Delete(ctx, url); err != nil {
			s.logger(ctx, "catalog.image.delete_failed", map[string]any{"url": url, "error": err.Error()})
		}
	}
}

func (s *catalogService) mapError(err error) error {
	if isRepoNotFound(err) {
		return ErrCatalogProductNotFound
	}
	return err
}

func validateProduct(p Product) error {
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.Category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrCatalogInvalidInput, strings.Join(missing, ", "))
	}
	if p.SoLuong < 0 {
		return fmt.Errorf("%w: soLuong must not be negative", ErrCatalogInvalidInput)
	}
	if p.GiaNhap < 0 || !(p.GiaNhap < p.Price && p.Price < p.GiaGoc) {
		return fmt.Errorf("%w: prices must satisfy giaNhap < price < giaGoc", ErrCatalogInvalidInput)
	}
	return nil
}

func applyProductUpdate(p Product, u repositories.ProductUpdate) Product {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.ThongTin != nil {
		p.ThongTin = *u.ThongTin
	}
	if u.ThuongHieu != nil {
		p.ThuongHieu = *u.ThuongHieu
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.GiaNhap != nil {
		p.GiaNhap = *u.GiaNhap
	}
	if u.GiaGoc != nil {
		p.GiaGoc = *u.GiaGoc
	}
	if u.SoLuong != nil {
		p.SoLuong = *u.SoLuong
	}
	if u.Bestseller != nil {
		p.Bestseller = *u.Bestseller
	}
	if u.Images != nil {
		p.Images = u.Images
	}
	return p
}

func cleanPtr(value *string) *string {
	if value == nil {
		return nil
	}
	clean := cleanText(*value)
	return &clean
}

func markupPtr(value *string) *string {
	if value == nil {
		return nil
	}
	clean := sanitizeMarkup(*value)
	return &clean
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if url = strings.TrimSpace(url); url != "" {
			out = append(out, url)
		}
	}
	return out
}
