package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPendingConflictWhenClosed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewIncidentsStore(db)

	// The guarded UPDATE matches no rows once the incident left the open
	// statuses.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE incidents SET status='pending'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.MarkPending(context.Background(), "ICD001", "ADM0001", time.Now().UTC(), "ADM0001")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdateStatusRejectsUnknownStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewIncidentsStore(db)

	err = s.BulkUpdateStatus(context.Background(), "ICD001", "vanished", time.Now().UTC(), "ADM0001")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdateStatusResetsSiblingTimestamps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewIncidentsStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE incidents SET status=?, pending_at=NULL, cancelled_at=NULL, resolved_at=?`)).
		WithArgs("resolved", sqlmock.AnyArg(), sqlmock.AnyArg(), "ADM0001", "ICD001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.BulkUpdateStatus(context.Background(), "ICD001", "resolved", time.Now().UTC(), "ADM0001"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingIncidentIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewIncidentsStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM incidents WHERE icd_id=?`)).
		WithArgs("ICD404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(context.Background(), "ICD404"), ErrConflict)
}
