package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/angiebeauty/storefront/internal/domain"
	"github.com/angiebeauty/storefront/pkg/database"
	apperrors "github.com/angiebeauty/storefront/pkg/errors"
)

const sessionColumns = `id, owner, user_id, status, current_step, completed,
			contact, shipping_address, shipping_method_id, payment,
			order_id, order_status, failure_reason, attempts,
			created_at, updated_at`

// CheckoutRepository implements repository.CheckoutRepository using PostgreSQL.
type CheckoutRepository struct {
	db database.DBTX
}

// NewCheckoutRepository creates a new PostgreSQL-backed checkout repository.
func NewCheckoutRepository(db database.DBTX) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// Create inserts a new checkout session into the database.
func (r *CheckoutRepository) Create(ctx context.Context, session *domain.CheckoutSession) (err error) {
	cols, err := encodeSession(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO checkout_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	ctx, end := database.TraceQuery(ctx, "checkout_sessions.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		session.ID,
		session.Owner,
		nullableString(session.UserID),
		session.Status,
		int32(session.CurrentStep),
		cols.completed,
		cols.contact,
		cols.address,
		nullableString(session.ShippingMethodID),
		cols.payment,
		nullableString(session.OrderID),
		nullableString(session.OrderStatus),
		nullableString(session.FailureReason),
		int32(session.Attempts),
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}

	return nil
}

// GetByID retrieves a checkout session by its ID.
func (r *CheckoutRepository) GetByID(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM checkout_sessions
		WHERE id = $1`

	return r.scanSession(ctx, "checkout_sessions.get", query, id)
}

// GetActiveByOwner retrieves the owner's latest session without a placed order.
func (r *CheckoutRepository) GetActiveByOwner(ctx context.Context, owner string) (*domain.CheckoutSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM checkout_sessions
		WHERE owner = $1 AND status <> 'completed'
		ORDER BY created_at DESC
		LIMIT 1`

	return r.scanSession(ctx, "checkout_sessions.get_active", query, owner)
}

// Update modifies an existing checkout session in the database.
func (r *CheckoutRepository) Update(ctx context.Context, session *domain.CheckoutSession) (err error) {
	cols, err := encodeSession(session)
	if err != nil {
		return err
	}

	session.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE checkout_sessions
		SET user_id = $1, status = $2, current_step = $3, completed = $4,
			contact = $5, shipping_address = $6, shipping_method_id = $7, payment = $8,
			order_id = $9, order_status = $10, failure_reason = $11, attempts = $12,
			updated_at = $13
		WHERE id = $14`

	ctx, end := database.TraceQuery(ctx, "checkout_sessions.update", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		nullableString(session.UserID),
		session.Status,
		int32(session.CurrentStep),
		cols.completed,
		cols.contact,
		cols.address,
		nullableString(session.ShippingMethodID),
		cols.payment,
		nullableString(session.OrderID),
		nullableString(session.OrderStatus),
		nullableString(session.FailureReason),
		int32(session.Attempts),
		session.UpdatedAt,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("checkout_session", session.ID)
	}

	return nil
}

// scanSession executes a query expected to return a single checkout session row.
func (r *CheckoutRepository) scanSession(ctx context.Context, operation, query string, args ...any) (_ *domain.CheckoutSession, err error) {
	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var (
		session          domain.CheckoutSession
		userID           *string
		currentStep      int32
		completedJSON    []byte
		contactJSON      []byte
		addressJSON      []byte
		shippingMethodID *string
		paymentJSON      []byte
		orderID          *string
		orderStatus      *string
		failureReason    *string
		attempts         int32
	)

	err = r.db.QueryRow(ctx, query, args...).Scan(
		&session.ID,
		&session.Owner,
		&userID,
		&session.Status,
		&currentStep,
		&completedJSON,
		&contactJSON,
		&addressJSON,
		&shippingMethodID,
		&paymentJSON,
		&orderID,
		&orderStatus,
		&failureReason,
		&attempts,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan checkout session: %w", err)
	}

	session.CurrentStep = domain.Step(currentStep)
	session.Attempts = int(attempts)
	session.UserID = derefString(userID)
	session.ShippingMethodID = derefString(shippingMethodID)
	session.OrderID = derefString(orderID)
	session.OrderStatus = derefString(orderStatus)
	session.FailureReason = derefString(failureReason)

	if err := json.Unmarshal(completedJSON, &session.Completed); err != nil {
		return nil, fmt.Errorf("unmarshal completed steps: %w", err)
	}
	if session.Contact, err = decodeOptional[domain.ContactInfo](contactJSON); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}
	if session.ShippingAddress, err = decodeOptional[domain.Address](addressJSON); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if session.Payment, err = decodeOptional[domain.PaymentInfo](paymentJSON); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}

	return &session, nil
}

type encodedSession struct {
	completed []byte
	contact   []byte
	address   []byte
	payment   []byte
}

func encodeSession(s *domain.CheckoutSession) (encodedSession, error) {
	var (
		out encodedSession
		err error
	)
	if out.completed, err = json.Marshal(s.Completed); err != nil {
		return out, fmt.Errorf("marshal completed steps: %w", err)
	}
	if out.contact, err = encodeOptional(s.Contact); err != nil {
		return out, fmt.Errorf("marshal contact: %w", err)
	}
	if out.address, err = encodeOptional(s.ShippingAddress); err != nil {
		return out, fmt.Errorf("marshal shipping address: %w", err)
	}
	if out.payment, err = encodeOptional(s.Payment); err != nil {
		return out, fmt.Errorf("marshal payment: %w", err)
	}
	return out, nil
}

// encodeOptional returns nil for a nil pointer so the column stores SQL NULL.
func encodeOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeOptional[T any](data []byte) (*T, error) {
	if data == nil || string(data) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// nullableString returns nil if the string is empty, otherwise a pointer to the string.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
