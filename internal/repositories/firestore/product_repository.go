package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	pfirestore "github.com/khotaikhoan/storefront/internal/platform/firestore"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog entries in the products collection.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: id is required")
	}
	return r.products.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns products newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.BestsellerOnly {
			q = q.Where("bestseller", "==", true)
		}
		return q.OrderBy("date", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}

func (r *ProductRepository) Update(ctx context.Context, productID string, update repositories.ProductUpdate) (domain.Product, error) {
	updates := productUpdates(update)
	if len(updates) > 0 {
		if err := r.products.Update(ctx, productID, updates); err != nil {
			return domain.Product{}, err
		}
	}
	return r.FindByID(ctx, productID)
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.products.Delete(ctx, productID)
}

// CountByCategory reads only the category field of every product.
func (r *ProductRepository) CountByCategory(ctx context.Context) (map[string]int, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select("category")
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, doc := range docs {
		counts[doc.Data.Category]++
	}
	return counts, nil
}

func productUpdates(update repositories.ProductUpdate) []firestore.Update {
	var updates []firestore.Update
	add := func(path string, value any) {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.ThongTin != nil {
		add("thongTin", *update.ThongTin)
	}
	if update.ThuongHieu != nil {
		add("thuongHieu", *update.ThuongHieu)
	}
	if update.Category != nil {
		add("category", *update.Category)
	}
	if update.Price != nil {
		add("price", *update.Price)
	}
	if update.GiaNhap != nil {
		add("giaNhap", *update.GiaNhap)
	}
	if update.GiaGoc != nil {
		add("giaGoc", *update.GiaGoc)
	}
	if update.SoLuong != nil {
		add("soLuong", *update.SoLuong)
	}
	if update.Bestseller != nil {
		add("bestseller", *update.Bestseller)
	}
	if update.Images != nil {
		add("images", update.Images)
	}
	if len(updates) > 0 {
		date := update.Date
		if date.IsZero() {
			date = time.Now()
		}
		add("date", date.UTC())
	}
	return updates
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	ThongTin    string    `firestore:"thongTin"`
	ThuongHieu  string    `firestore:"thuongHieu"`
	Category    string    `firestore:"category"`
	Price       int64     `firestore:"price"`
	GiaNhap     int64     `firestore:"giaNhap"`
	GiaGoc      int64     `firestore:"giaGoc"`
	SoLuong     int       `firestore:"soLuong"`
	Bestseller  bool      `firestore:"bestseller"`
	Images      []string  `firestore:"images"`
	Date        time.Time `firestore:"date"`
}

func newProductDocument(p domain.Product) productDocument {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productDocument{
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
		Images:      images,
		Date:        p.Date.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		ThongTin:    d.ThongTin,
		ThuongHieu:  d.ThuongHieu,
		Category:    d.Category,
		Price:       d.Price,
		GiaNhap:     d.GiaNhap,
		GiaGoc:      d.GiaGoc,
		SoLuong:     d.SoLuong,
		Bestseller:  d.Bestseller,
		Images:      append([]string(nil), d.Images...),
		Date:        d.Date,
	}
}
