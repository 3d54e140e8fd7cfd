package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventseat/ticketing/internal/model"
)

// TicketRepo provides data access to the tickets table, the system of
// record for seats.  The fast index may lag behind it briefly, but payment
// and audit always read from here.  All timestamps are UTC.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span repositories.
func (r *TicketRepo) DB() *sql.DB { return r.db }

// CreateBatch inserts one ticket row per seat (seat numbers 1..capacity)
// for a region, inside a single transaction so a region is provisioned
// either completely or not at all.  This is the coarse multi-row operation
// that relies on the database's transactional guarantees rather than the
// per-ticket lock.  It returns the created tickets with their generated ids.
func (r *TicketRepo) CreateBatch(ctx context.Context, activityID, regionID string, capacity int) ([]model.Ticket, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	tickets := make([]model.Ticket, 0, capacity)
	query := `INSERT INTO tickets (ticket_id, activity_id, region_id, seat_number, is_paid) VALUES `
	args := make([]interface{}, 0, capacity*5)
	for seat := 1; seat <= capacity; seat++ {
		if seat > 1 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		t := model.Ticket{
			ID:         uuid.NewString(),
			ActivityID: activityID,
			RegionID:   regionID,
			SeatNumber: seat,
		}
		args = append(args, t.ID, t.ActivityID, t.RegionID, t.SeatNumber, false)
		tickets = append(tickets, t)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ticket batch: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert ticket batch: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ticket batch: %w", err)
	}
	return tickets, nil
}

// GetByID loads a single ticket row.
func (r *TicketRepo) GetByID(ctx context.Context, ticketID string) (*model.Ticket, error) {
	const q = `SELECT ticket_id, activity_id, region_id, seat_number, owner_user_id, is_paid, created_at, updated_at
	           FROM tickets WHERE ticket_id = ?`
	var t model.Ticket
	err := r.db.QueryRowContext(ctx, q, ticketID).Scan(
		&t.ID, &t.ActivityID, &t.RegionID, &t.SeatNumber, &t.OwnerUserID, &t.IsPaid, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByRegion returns all tickets in a region, optionally filtered by
// payment state when isPaid is non-nil.
func (r *TicketRepo) ListByRegion(ctx context.Context, regionID string, isPaid *bool) ([]model.Ticket, error) {
	q := `SELECT ticket_id, activity_id, region_id, seat_number, owner_user_id, is_paid, created_at, updated_at
	      FROM tickets WHERE region_id = ?`
	args := []interface{}{regionID}
	if isPaid != nil {
		q += ` AND is_paid = ?`
		args = append(args, *isPaid)
	}
	q += ` ORDER BY seat_number`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.ActivityID, &t.RegionID, &t.SeatNumber, &t.OwnerUserID, &t.IsPaid, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UpdateOwnership writes a ticket's owner and payment flag.  owner may be
// nil to clear the ownership (refund or expiry).  The engine calls this
// while holding the ticket's lock.
func (r *TicketRepo) UpdateOwnership(ctx context.Context, ticketID string, owner *string, isPaid bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET owner_user_id = ?, is_paid = ?, updated_at = UTC_TIMESTAMP() WHERE ticket_id = ?`,
		owner, isPaid, ticketID,
	)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", ticketID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// RowsAffected is 0 both for a missing row and for a no-op
		// update, so confirm existence before reporting not found.
		if _, err := r.GetByID(ctx, ticketID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByRegion removes every ticket row of a region inside a single
// transaction.  It refuses to delete when any ticket is owned or paid:
// teardown is only valid before go-live.
func (r *TicketRepo) DeleteByRegion(ctx context.Context, regionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin region delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sold int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE region_id = ? AND (owner_user_id IS NOT NULL OR is_paid = TRUE)`,
		regionID,
	).Scan(&sold)
	if err != nil {
		return err
	}
	if sold > 0 {
		return ErrRegionNotEmpty
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM tickets WHERE region_id = ?`, regionID); err != nil {
		return fmt.Errorf("delete region %s tickets: %w", regionID, err)
	}
	return tx.Commit()
}
