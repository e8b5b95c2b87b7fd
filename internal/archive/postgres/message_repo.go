package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/c3ds-console/internal/model"
)

// MessageRepo archives feed messages. Message IDs are assigned by the
// backend, so saving is idempotent.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

const insertMessage = `INSERT INTO messages
 (id, device_id, device_name, message_type, sent_at, received_at, preview, confidence, latitude, longitude)
 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
 ON CONFLICT (id) DO NOTHING`

// SaveMessages inserts ms in one transaction and returns how many were new.
func (r *MessageRepo) SaveMessages(ctx context.Context, ms []model.Message) (n int, err error) {
	if len(ms) == 0 {
		return 0, nil
	}
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			n, err = 0, e
		}
	}()

	for _, m := range ms {
		var lat, lon *float64
		if m.DeviceLocation != nil {
			lat, lon = &m.DeviceLocation.Latitude, &m.DeviceLocation.Longitude
		}
		var received any
		if !m.ReceivedAt.IsZero() {
			received = m.ReceivedAt
		}
		tag, err := tx.Exec(ctx, insertMessage,
			m.ID, m.DeviceID, m.DeviceName, string(m.Type), m.Timestamp, received,
			m.DataPreview, m.Confidence, lat, lon)
		if err != nil {
			return 0, fmt.Errorf("message %d: %w", m.ID, err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

// LatestID returns the highest archived message ID, or 0 when empty.
func (r *MessageRepo) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&id)
	return id, err
}

// Recent returns up to limit archived messages, newest first. A nil
// deviceID selects all devices.
func (r *MessageRepo) Recent(ctx context.Context, deviceID *uuid.UUID, limit int) ([]model.Message, error) {
	const q = `SELECT id, device_id, device_name, message_type, sent_at, preview, confidence
 FROM messages
 WHERE ($1::uuid IS NULL OR device_id = $1)
 ORDER BY sent_at DESC, id DESC
 LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m  model.Message
			mt string
		)
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.DeviceName, &mt, &m.Timestamp, &m.DataPreview, &m.Confidence); err != nil {
			return nil, err
		}
		m.Type = model.MessageType(mt)
		out = append(out, m)
	}
	return out, rows.Err()
}
