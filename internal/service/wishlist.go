package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/angiebeauty/storefront/internal/repository"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

const maxProductIDLength = 100

// WishlistService manages the products an owner saved for later.
type WishlistService struct {
	repo   repository.WishlistRepository
	logger *slog.Logger
}

// NewWishlistService creates a new wishlist service.
func NewWishlistService(repo repository.WishlistRepository, logger *slog.Logger) *WishlistService {
	return &WishlistService{repo: repo, logger: logger}
}

// List returns the saved product ids, oldest first.
func (s *WishlistService) List(ctx context.Context, owner string) ([]string, error) {
	ids, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	return ids, nil
}

// Add saves productID. Adding a saved product is a no-op.
func (s *WishlistService) Add(ctx context.Context, owner, productID string) error {
	productID, err := normalizeProductID(productID)
	if err != nil {
		return err
	}
	added, err := s.repo.Add(ctx, owner, productID)
	if err != nil {
		return fmt.Errorf("add to wishlist: %w", err)
	}
	if added {
		s.logger.InfoContext(ctx, "product added to wishlist",
			slog.String("owner", owner),
			slog.String("product_id", productID),
		)
	}
	return nil
}

// Remove drops productID. Removing an unsaved product is a no-op.
func (s *WishlistService) Remove(ctx context.Context, owner, productID string) error {
	productID, err := normalizeProductID(productID)
	if err != nil {
		return err
	}
	if _, err := s.repo.Remove(ctx, owner, productID); err != nil {
		return fmt.Errorf("remove from wishlist: %w", err)
	}
	return nil
}

// Toggle adds productID when absent and removes it otherwise. It reports
// whether the product is saved afterwards.
func (s *WishlistService) Toggle(ctx context.Context, owner, productID string) (bool, error) {
	productID, err := normalizeProductID(productID)
	if err != nil {
		return false, err
	}
	removed, err := s.repo.Remove(ctx, owner, productID)
	if err != nil {
		return false, fmt.Errorf("toggle wishlist: %w", err)
	}
	if removed {
		return false, nil
	}
	if _, err := s.repo.Add(ctx, owner, productID); err != nil {
		return false, fmt.Errorf("toggle wishlist: %w", err)
	}
	return true, nil
}

// Contains reports whether productID is saved.
func (s *WishlistService) Contains(ctx context.Context, owner, productID string) (bool, error) {
	productID, err := normalizeProductID(productID)
	if err != nil {
		return false, err
	}
	ok, err := s.repo.Contains(ctx, owner, productID)
	if err != nil {
		return false, fmt.Errorf("check wishlist: %w", err)
	}
	return ok, nil
}

func normalizeProductID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.InvalidInput("product id is required")
	}
	if len(id) > maxProductIDLength {
		return "", apperrors.InvalidInput(fmt.Sprintf("product id must be at most %d characters", maxProductIDLength))
	}
	return id, nil
}
