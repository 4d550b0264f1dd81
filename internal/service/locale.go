package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/internal/repository"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

// LocaleService resolves and stores the owner's display locale.
type LocaleService struct {
	repo          repository.PreferenceRepository
	supported     []string
	defaultLocale string
	matcher       language.Matcher
	logger        *slog.Logger
}

// NewLocaleService creates a locale service for the supported locales. The
// default locale is used when nothing else matches.
func NewLocaleService(repo repository.PreferenceRepository, supported []string, defaultLocale string, logger *slog.Logger) *LocaleService {
	normalized := make([]string, 0, len(supported))
	for _, l := range supported {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(l)))
	}
	defaultLocale = strings.ToLower(strings.TrimSpace(defaultLocale))

	// The default goes first so the matcher falls back to it.
	ordered := append([]string{defaultLocale}, slices.DeleteFunc(slices.Clone(normalized), func(l string) bool {
		return l == defaultLocale
	})...)
	tags := make([]language.Tag, len(ordered))
	for i, l := range ordered {
		tags[i] = language.Make(l)
	}

	return &LocaleService{
		repo:          repo,
		supported:     ordered,
		defaultLocale: defaultLocale,
		matcher:       language.NewMatcher(tags),
		logger:        logger,
	}
}

// Supported returns the supported locales, default first.
func (s *LocaleService) Supported() []string {
	return slices.Clone(s.supported)
}

// Get returns the stored locale, else the best match for the Accept-Language
// header, else the default.
func (s *LocaleService) Get(ctx context.Context, owner, acceptLanguage string) (string, error) {
	stored, err := s.repo.GetLocale(ctx, owner)
	switch {
	case err == nil:
		if slices.Contains(s.supported, stored) {
			return stored, nil
		}
		s.logger.WarnContext(ctx, "ignoring unsupported stored locale",
			slog.String("owner", owner),
			slog.String("locale", stored),
		)
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return "", fmt.Errorf("get locale: %w", err)
	}
	return s.Match(acceptLanguage), nil
}

// Match picks the supported locale closest to an Accept-Language header.
func (s *LocaleService) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return s.defaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return s.defaultLocale
	}
	_, index, confidence := s.matcher.Match(tags...)
	if confidence == language.No {
		return s.defaultLocale
	}
	return s.supported[index]
}

// Set stores locale for owner.
func (s *LocaleService) Set(ctx context.Context, owner, locale string) (string, error) {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if !slices.Contains(s.supported, locale) {
		return "", domain.ErrUnsupportedLocale(locale)
	}
	if err := s.repo.SetLocale(ctx, owner, locale); err != nil {
		return "", fmt.Errorf("set locale: %w", err)
	}
	return locale, nil
}
