package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cmykmanya/shopai-sub000/cart"
	"github.com/cmykmanya/shopai-sub000/logging"
	"github.com/cmykmanya/shopai-sub000/metrics"
	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/session"
	"github.com/cmykmanya/shopai-sub000/store"
)

var (
	ErrUserRequired       = errors.New("user_id required")
	ErrTitleRequired      = errors.New("title required")
	ErrNegativePrice      = errors.New("price must be >= 0")
	ErrNegativeStock      = errors.New("stock cannot be negative")
	ErrVariantUnavailable = errors.New("size or color not offered for this product")
	ErrEmptyCart          = errors.New("cart is empty")
)

// Backend is the part of the store the service needs besides cart snapshots,
// which the session manager persists on its own.
type Backend interface {
	store.Catalog
	store.OrderStore
}

type Service struct {
	store    Backend
	sessions *session.Manager
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

var _ ServiceInterface = (*Service)(nil)

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st Backend, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{store: st, sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return "", ErrTitleRequired
	}
	if in.Price.IsNegative() {
		return "", ErrNegativePrice
	}
	if in.Stock < 0 {
		return "", ErrNegativeStock
	}
	return s.store.CreateProduct(ctx, models.Product{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		ImageRef:    in.ImageRef,
		Price:       in.Price,
		Sizes:       in.Sizes,
		Colors:      in.Colors,
		Stock:       in.Stock,
	})
}

func (s *Service) ListProducts(ctx context.Context) ([]ProductDTO, error) {
	rows, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, p := range rows {
		out = append(out, toProductDTO(p))
	}
	return out, nil
}

func (s *Service) UpdateStock(ctx context.Context, productID string, newStock int) error {
	if newStock < 0 {
		return ErrNegativeStock
	}
	return s.store.UpdateStock(ctx, productID, newStock)
}

// AddToCart looks the product up, checks the variant is offered and that
// stock covers what the cart already holds plus qty, then adds it at the
// current catalog price.
func (s *Service) AddToCart(ctx context.Context, userID string, in AddItemInput) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	if in.ProductID == "" {
		return CartDTO{}, cart.ErrProductRequired
	}
	if in.Quantity <= 0 {
		return CartDTO{}, cart.ErrQuantityPositive
	}
	p, err := s.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return CartDTO{}, err
	}
	if !p.Offers(in.Size, in.Color) {
		return CartDTO{}, ErrVariantUnavailable
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	if held := productQuantity(sess.Items(), p.ID, ""); held+in.Quantity > p.Stock {
		return CartDTO{}, fmt.Errorf("product %s: %w", p.ID, store.ErrInsufficientStock)
	}

	c := cart.Candidate{
		ProductID: p.ID,
		Title:     p.Title,
		ImageRef:  p.ImageRef,
		UnitPrice: p.Price,
		Quantity:  in.Quantity,
		Variant:   models.VariantKey{ProductID: p.ID, Size: in.Size, Color: in.Color},
	}
	if err := c.Validate(); err != nil {
		return CartDTO{}, err
	}
	sess.Add(c)
	return s.view(userID, sess), nil
}

// UpdateCartItem sets the quantity of one line; qty <= 0 removes it. An
// unknown line id leaves the cart untouched.
func (s *Service) UpdateCartItem(ctx context.Context, userID, lineID string, qty int) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	if item, ok := sess.Item(lineID); ok && qty > item.Quantity {
		p, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return CartDTO{}, err
		}
		if others := productQuantity(sess.Items(), item.ProductID, lineID); others+qty > p.Stock {
			return CartDTO{}, fmt.Errorf("product %s: %w", p.ID, store.ErrInsufficientStock)
		}
	}
	sess.UpdateQuantity(lineID, qty)
	return s.view(userID, sess), nil
}

func (s *Service) RemoveFromCart(ctx context.Context, userID, lineID string) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	sess.Remove(lineID)
	return s.view(userID, sess), nil
}

func (s *Service) ClearCart(ctx context.Context, userID string) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	sess.Clear()
	return s.view(userID, sess), nil
}

func (s *Service) GetCart(ctx context.Context, userID string) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	return s.view(userID, sess), nil
}

// ApplyPromotion returns the cart view together with the promotion error when
// the code was rejected, so callers can show why.
func (s *Service) ApplyPromotion(ctx context.Context, userID, code string) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	res := sess.ApplyPromotion(code)
	return s.view(userID, sess), res.Err()
}

func (s *Service) RemovePromotion(ctx context.Context, userID string) (CartDTO, error) {
	if userID == "" {
		return CartDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return CartDTO{}, err
	}
	sess.RemovePromotion()
	return s.view(userID, sess), nil
}

// Checkout submits the cart as an order priced with the rounded totals and
// empties the cart once the order is stored. Items and totals come from one
// snapshot, and the session is held until the order is stored, so no cart
// command can slip between pricing and clearing.
func (s *Service) Checkout(ctx context.Context, userID string) (OrderDTO, error) {
	if userID == "" {
		return OrderDTO{}, ErrUserRequired
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		return OrderDTO{}, err
	}
	var placed models.Order
	err = sess.Checkout(func(snap session.Snapshot) error {
		if len(snap.Items) == 0 {
			return ErrEmptyCart
		}
		r := snap.Totals.Rounded()
		order := models.Order{
			UserID:   userID,
			Items:    snap.Items,
			Subtotal: r.Subtotal,
			Discount: r.Discount,
			Shipping: r.Shipping,
			Tax:      r.Tax,
			Total:    r.Total,
		}
		if snap.Promotion.Applied {
			order.PromotionCode = snap.Promotion.Code
		}
		var err error
		placed, err = s.store.CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		return OrderDTO{}, err
	}
	s.metrics.Checkout()
	s.logger.Info("order placed",
		zap.Int64("order_id", placed.ID),
		zap.String("user_id", userID),
		zap.String("total", placed.Total.StringFixed(2)))
	return toOrderDTO(placed), nil
}

func (s *Service) view(userID string, sess *session.Session) CartDTO {
	snap := sess.Snapshot()
	r := snap.Totals.Rounded()
	dto := CartDTO{
		UserID:                userID,
		Items:                 make([]CartItemDTO, 0, len(snap.Items)),
		ItemCount:             snap.ItemCount,
		Subtotal:              money(r.Subtotal),
		Discount:              money(r.Discount),
		SubtotalAfterDiscount: money(r.SubtotalAfterDiscount),
		Shipping:              money(r.Shipping),
		Tax:                   money(r.Tax),
		Total:                 money(r.Total),
	}
	for _, it := range snap.Items {
		dto.Items = append(dto.Items, toCartItemDTO(it))
	}
	if snap.Code != "" {
		dto.Promotion = &PromotionDTO{Code: snap.Code, Applied: snap.Promotion.Applied, Reason: string(snap.Promotion.Reason)}
	}
	return dto
}

// productQuantity sums the quantity held for productID across variants,
// skipping the line with id skip.
func productQuantity(items []models.LineItem, productID, skip string) int {
	n := 0
	for _, it := range items {
		if it.ProductID == productID && it.ID != skip {
			n += it.Quantity
		}
	}
	return n
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
