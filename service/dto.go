package service

import (
	"time"

	"github.com/shopspring/decimal"

	models "github.com/cmykmanya/shopai-sub000/model"
)

type ProductInput struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageRef    string          `json:"image_ref"`
	Price       decimal.Decimal `json:"price"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Stock       int             `json:"stock"`
}

type AddItemInput struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

// DTOs. Money is rendered with two decimals.
type ProductDTO struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageRef    string   `json:"image_ref,omitempty"`
	Price       string   `json:"price"`
	Sizes       []string `json:"sizes"`
	Colors      []string `json:"colors"`
	Stock       int      `json:"stock"`
}

type CartItemDTO struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	ImageRef  string `json:"image_ref,omitempty"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type PromotionDTO struct {
	Code    string `json:"code"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

type CartDTO struct {
	UserID                string        `json:"user_id"`
	Items                 []CartItemDTO `json:"items"`
	ItemCount             int           `json:"item_count"`
	Subtotal              string        `json:"subtotal"`
	Discount              string        `json:"discount"`
	SubtotalAfterDiscount string        `json:"subtotal_after_discount"`
	Shipping              string        `json:"shipping"`
	Tax                   string        `json:"tax"`
	Total                 string        `json:"total"`
	Promotion             *PromotionDTO `json:"promotion,omitempty"`
}

type OrderDTO struct {
	ID            int64         `json:"id"`
	UserID        string        `json:"user_id"`
	PromotionCode string        `json:"promotion_code,omitempty"`
	Items         []CartItemDTO `json:"items"`
	Subtotal      string        `json:"subtotal"`
	Discount      string        `json:"discount"`
	Shipping      string        `json:"shipping"`
	Tax           string        `json:"tax"`
	Total         string        `json:"total"`
	CreatedAt     time.Time     `json:"created_at"`
}

func toProductDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		ImageRef:    p.ImageRef,
		Price:       money(p.Price),
		Sizes:       p.Sizes,
		Colors:      p.Colors,
		Stock:       p.Stock,
	}
}

func toCartItemDTO(it models.LineItem) CartItemDTO {
	return CartItemDTO{
		ID:        it.ID,
		ProductID: it.ProductID,
		Title:     it.Title,
		ImageRef:  it.ImageRef,
		Size:      it.Variant.Size,
		Color:     it.Variant.Color,
		UnitPrice: money(it.UnitPrice),
		Quantity:  it.Quantity,
		LineTotal: money(it.LineTotal()),
	}
}

func toOrderDTO(o models.Order) OrderDTO {
	od := OrderDTO{
		ID:            o.ID,
		UserID:        o.UserID,
		PromotionCode: o.PromotionCode,
		Items:         make([]CartItemDTO, 0, len(o.Items)),
		Subtotal:      money(o.Subtotal),
		Discount:      money(o.Discount),
		Shipping:      money(o.Shipping),
		Tax:           money(o.Tax),
		Total:         money(o.Total),
		CreatedAt:     o.CreatedAt,
	}
	for _, it := range o.Items {
		od.Items = append(od.Items, toCartItemDTO(it))
	}
	return od
}
