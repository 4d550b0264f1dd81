package repository

import (
	"context"
	"errors"

	"github.com/angiebeauty/storefront/internal/domain"
)

// ErrCorruptSnapshot is returned when stored data cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// CartRepository persists cart snapshots per owner.
type CartRepository interface {
	// Get returns the stored cart. Missing carts return apperrors.ErrNotFound;
	// undecodable ones wrap ErrCorruptSnapshot.
	Get(ctx context.Context, owner string) (*domain.Cart, error)

	// Save overwrites the owner's snapshot.
	Save(ctx context.Context, cart *domain.Cart) error

	// Delete removes the owner's snapshot.
	Delete(ctx context.Context, owner string) error
}

// WishlistRepository stores the product ids an owner saved for later.
type WishlistRepository interface {
	// List returns product ids in the order they were added.
	List(ctx context.Context, owner string) ([]string, error)

	// Add saves productID. It reports false when it was already present.
	Add(ctx context.Context, owner, productID string) (bool, error)

	// Remove deletes productID. It reports false when it was not present.
	Remove(ctx context.Context, owner, productID string) (bool, error)

	// Contains reports whether productID is saved.
	Contains(ctx context.Context, owner, productID string) (bool, error)
}

// PreferenceRepository stores per-owner preferences.
type PreferenceRepository interface {
	// GetLocale returns apperrors.ErrNotFound when no locale was stored.
	GetLocale(ctx context.Context, owner string) (string, error)

	SetLocale(ctx context.Context, owner, locale string) error
}

// CheckoutRepository persists checkout sessions.
type CheckoutRepository interface {
	// Create inserts a new checkout session.
	Create(ctx context.Context, session *domain.CheckoutSession) error

	// GetByID retrieves a checkout session by id.
	GetByID(ctx context.Context, id string) (*domain.CheckoutSession, error)

	// Update overwrites an existing checkout session.
	Update(ctx context.Context, session *domain.CheckoutSession) error

	// GetActiveByOwner returns the owner's latest session that has not placed
	// an order.
	GetActiveByOwner(ctx context.Context, owner string) (*domain.CheckoutSession, error)
}
