package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/c3ds-console/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

const insertRe = `INSERT INTO messages`

func TestMessageRepo_SaveMessages_CountsNewRows(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	dev := uuid.Must(uuid.NewV4())
	ts := time.Date(2026, 1, 27, 21, 0, 0, 0, time.UTC)
	ms := []model.Message{
		{ID: 7, DeviceID: dev, DeviceName: "probe", Type: model.MessageAlert, Timestamp: ts,
			DeviceLocation: &model.GeoPoint{Latitude: 54.7, Longitude: 25.3}},
		{ID: 8, DeviceID: dev, DeviceName: "probe", Type: model.MessageHeartbeat, Timestamp: ts},
	}

	mock.ExpectBegin()
	mock.ExpectExec(insertRe).
		WithArgs(int64(7), dev, "probe", "alert", ts, pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insertRe).
		WithArgs(int64(8), dev, "probe", "heartbeat", ts, pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := r.SaveMessages(context.Background(), ms)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_SaveMessages_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(insertRe).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := r.SaveMessages(context.Background(), []model.Message{{ID: 1, Type: model.MessageAlert}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_SaveMessages_EmptyIsNoop(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	n, err := NewMessageRepo(db).SaveMessages(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_LatestID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(id\), 0\) FROM messages`).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(int64(42)))

	id, err := NewMessageRepo(db).LatestID(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestMessageRepo_Recent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	dev := uuid.Must(uuid.NewV4())
	ts := time.Date(2026, 1, 27, 21, 0, 0, 0, time.UTC)
	conf := 0.9
	mock.ExpectQuery(`SELECT id, device_id, device_name, message_type, sent_at, preview, confidence`).
		WithArgs(&dev, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "device_id", "device_name", "message_type", "sent_at", "preview", "confidence"}).
			AddRow(int64(9), dev, "probe", "alert", ts, "smoke", &conf))

	ms, err := NewMessageRepo(db).Recent(context.Background(), &dev, 10)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.Equal(t, model.MessageAlert, ms[0].Type)
	require.Equal(t, "smoke", ms[0].DataPreview)
	require.InDelta(t, 0.9, *ms[0].Confidence, 1e-9)
}
