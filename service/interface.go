package service

import "context"

type ServiceInterface interface {
	CreateProduct(ctx context.Context, in ProductInput) (string, error)
	ListProducts(ctx context.Context) ([]ProductDTO, error)
	UpdateStock(ctx context.Context, productID string, newStock int) error

	AddToCart(ctx context.Context, userID string, in AddItemInput) (CartDTO, error)
	UpdateCartItem(ctx context.Context, userID, lineID string, qty int) (CartDTO, error)
	RemoveFromCart(ctx context.Context, userID, lineID string) (CartDTO, error)
	ClearCart(ctx context.Context, userID string) (CartDTO, error)
	GetCart(ctx context.Context, userID string) (CartDTO, error)
	ApplyPromotion(ctx context.Context, userID, code string) (CartDTO, error)
	RemovePromotion(ctx context.Context, userID string) (CartDTO, error)

	Checkout(ctx context.Context, userID string) (OrderDTO, error)
}
