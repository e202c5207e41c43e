package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicremind/libs/db"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// Postgres stores one tenant's configuration and appointments. UpdateAppointment locks the
// row for the duration of the mutation, so concurrent webhook and dispatch writers never
// overwrite each other.
type Postgres struct {
	pool     *db.Pool
	tenantID string
}

func NewPostgres(pool *db.Pool, tenantID string) *Postgres {
	return &Postgres{pool: pool, tenantID: tenantID}
}

func (p *Postgres) LoadConfig(ctx context.Context) (*model.TenantConfig, error) {
	var (
		cfg  model.TenantConfig
		hour string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT api_key, sender_number, template_name, reminder_hour, timezone, language, confirm_reply, cancel_reply
		FROM tenant_configs
		WHERE tenant_id = $1
	`, p.tenantID).Scan(&cfg.APIKey, &cfg.SenderNumber, &cfg.TemplateName, &hour, &cfg.Timezone, &cfg.Language, &cfg.ConfirmReply, &cfg.CancelReply)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ReminderHour, err = model.ParseReminderHour(hour)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", p.tenantID, err)
	}
	return &cfg, nil
}

func (p *Postgres) SaveConfig(ctx context.Context, cfg model.TenantConfig) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tenant_configs (tenant_id, api_key, sender_number, template_name, reminder_hour, timezone, language, confirm_reply, cancel_reply)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE
		SET api_key = EXCLUDED.api_key,
			sender_number = EXCLUDED.sender_number,
			template_name = EXCLUDED.template_name,
			reminder_hour = EXCLUDED.reminder_hour,
			timezone = EXCLUDED.timezone,
			language = EXCLUDED.language,
			confirm_reply = EXCLUDED.confirm_reply,
			cancel_reply = EXCLUDED.cancel_reply,
			updated_at = now()
	`, p.tenantID, cfg.APIKey, cfg.SenderNumber, cfg.TemplateName, cfg.ReminderHour.String(), cfg.Timezone, cfg.Language, cfg.ConfirmReply, cfg.CancelReply)
	return err
}

const appointmentColumns = `id, patient_id, patient_name, phone, appointment_date, appointment_time, status,
	reminder_sent, reminder_sent_at, confirmed_at, confirmed_via, cancelled_at, cancelled_via`

func (p *Postgres) LoadAppointments(ctx context.Context) ([]model.Appointment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
		ORDER BY appointment_date, appointment_time, id
	`, p.tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (p *Postgres) SaveAppointments(ctx context.Context, appts []model.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	return p.pool.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range appts {
			batch.Queue(`
				INSERT INTO appointments (tenant_id, id, patient_id, patient_name, phone, appointment_date, appointment_time, status,
					reminder_sent, reminder_sent_at, confirmed_at, confirmed_via, cancelled_at, cancelled_via)
				VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11, $12, $13, $14)
				ON CONFLICT (tenant_id, id) DO UPDATE
				SET patient_id = EXCLUDED.patient_id,
					patient_name = EXCLUDED.patient_name,
					phone = EXCLUDED.phone,
					appointment_date = EXCLUDED.appointment_date,
					appointment_time = EXCLUDED.appointment_time,
					status = EXCLUDED.status,
					reminder_sent = EXCLUDED.reminder_sent,
					reminder_sent_at = EXCLUDED.reminder_sent_at,
					confirmed_at = EXCLUDED.confirmed_at,
					confirmed_via = EXCLUDED.confirmed_via,
					cancelled_at = EXCLUDED.cancelled_at,
					cancelled_via = EXCLUDED.cancelled_via,
					updated_at = now()
			`, p.tenantID, a.ID, a.PatientID, a.PatientName, a.Phone, a.Date, a.Time, string(a.Status),
				a.ReminderSent, a.ReminderSentAt, a.ConfirmedAt, a.ConfirmedVia, a.CancelledAt, a.CancelledVia)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (p *Postgres) UpdateAppointment(ctx context.Context, id string, fn Mutator) (model.Appointment, error) {
	var updated model.Appointment
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE tenant_id = $1 AND id = $2
			FOR UPDATE
		`, p.tenantID, id)
		a, err := scanAppointment(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.ID = id
		_, err = tx.Exec(ctx, `
			UPDATE appointments
			SET status = $3,
				reminder_sent = $4,
				reminder_sent_at = $5,
				confirmed_at = $6,
				confirmed_via = $7,
				cancelled_at = $8,
				cancelled_via = $9,
				updated_at = now()
			WHERE tenant_id = $1 AND id = $2
		`, p.tenantID, id, string(a.Status), a.ReminderSent, a.ReminderSentAt, a.ConfirmedAt, a.ConfirmedVia, a.CancelledAt, a.CancelledVia)
		if err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		date   time.Time
		status string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Phone, &date, &a.Time, &status,
		&a.ReminderSent, &a.ReminderSentAt, &a.ConfirmedAt, &a.ConfirmedVia, &a.CancelledAt, &a.CancelledVia)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = date.Format(model.DateLayout)
	a.Status = model.Status(status)
	return a, nil
}
