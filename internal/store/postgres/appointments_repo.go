package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type ledgerTx struct {
	tx         bun.Tx
	providerID string
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderLedger(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, ledgerTx{tx: tx, providerID: providerID})
	})
}

func lockProviderLedger(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "provider:"+providerID).Exec(ctx)
	return err
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db.NewSelect(), id)
}

func (r *AppointmentRepo) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, int, error) {
	rows := make([]domain.Appointment, 0)
	q := r.db.NewSelect().Model(&rows)
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(store.StatusStrings(filter.Statuses)))
	}
	if filter.From != nil {
		q = q.Where("scheduled_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("scheduled_at < ?", *filter.To)
	}
	q = q.OrderExpr("scheduled_at DESC, id ASC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *AppointmentRepo) ListActive(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActive(ctx, r.db, providerID, windowStart, windowEnd)
}

func listActive(ctx context.Context, db bun.IDB, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	rows := make([]domain.Appointment, 0)
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", bun.In(store.StatusStrings(domain.ActiveStatuses))).
		Where("scheduled_at < ?", windowEnd).
		Where("ends_at > ?", windowStart).
		OrderExpr("scheduled_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getAppointment(ctx context.Context, q *bun.SelectQuery, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := q.Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (t ledgerTx) GetAvailability(ctx context.Context, providerID string) (domain.Availability, error) {
	return getAvailability(ctx, t.tx, providerID)
}

func (t ledgerTx) ListActive(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActive(ctx, t.tx, providerID, windowStart, windowEnd)
}

func (t ledgerTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ProviderID != t.providerID {
		return domain.Appointment{}, domain.ValidationError("appointment provider does not match the locked provider")
	}
	m := appt
	m.EndsAt = appt.Interval().End

	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap":
				return domain.Appointment{}, store.ErrConflict
			case pgErr.Code == "23505" && pgErr.ConstraintName == "appointments_pkey":
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (t ledgerTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx.NewSelect().For("UPDATE"), id)
}

func (t ledgerTx) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Appointment, error) {
	m := domain.Appointment{ID: id, Status: status}
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("status", "updated_at").
		Where("id = ?", id).
		Where("provider_id = ?", t.providerID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}
