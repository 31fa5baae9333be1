package booking

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
)

// Queries are the statements run inside the booking transaction.
type Queries interface {
	GetBookingByTransactionID(ctx context.Context, transactionID pgtype.Text) (dbgen.Booking, error)
	InsertBooking(ctx context.Context, arg dbgen.InsertBookingParams) (dbgen.Booking, error)
	RedeemDiscountCode(ctx context.Context, code string) (int64, error)
	InsertDomainEvent(ctx context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error)
}

// Store reads bookings and runs fn in a single transaction.
type Store interface {
	GetBookingByTransactionID(ctx context.Context, transactionID pgtype.Text) (dbgen.Booking, error)
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// PgStore is the Postgres Store.
type PgStore struct {
	Pool *pgxpool.Pool
}

func (s PgStore) GetBookingByTransactionID(ctx context.Context, transactionID pgtype.Text) (dbgen.Booking, error) {
	return dbgen.New(s.Pool).GetBookingByTransactionID(ctx, transactionID)
}

// InTx commits when fn returns nil and rolls back otherwise.
func (s PgStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		return fn(dbgen.New(s.Pool).WithTx(tx))
	})
}

// IsUniqueViolation reports SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
