package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestResolvedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewReportsStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT resolved_id FROM resolved_incidents ORDER BY created_at DESC, resolved_id DESC LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"resolved_id"}).AddRow("RSV00009"))

	id, err := s.LatestResolvedID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RSV00009", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestResolvedIDEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewReportsStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT resolved_id FROM resolved_incidents`)).
		WillReturnError(sql.ErrNoRows)

	id, err := s.LatestResolvedID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", id)
}

func TestReportsInsertRequiresResolvedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewReportsStore(db)

	r := &ResolutionReport{IncidentID: "ICD001", ResolvedAt: time.Now().UTC()}
	assert.Error(t, s.Insert(context.Background(), r))
	// The guard must fire before any statement reaches the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportsInsertSerializesSummaryDetails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewReportsStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO resolved_incidents`)).
		WithArgs("RSV00001", "ICD001", "pending", "resolved", "STU1", "Maria Cruz", "ADM0001", "Dana Reyes",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "Handled on site",
			`{"student":"Maria Cruz","admin":"Dana Reyes","location":"Main Hall","category":"fire"}`,
			sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reported := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	minutes := 30.0
	r := &ResolutionReport{
		ResolvedID:      "RSV00001",
		IncidentID:      "ICD001",
		StatusBefore:    "pending",
		StatusAfter:     "resolved",
		StudentID:       "STU1",
		StudentName:     "Maria Cruz",
		AdminID:         "ADM0001",
		AdminName:       "Dana Reyes",
		ReportedAt:      &reported,
		ResolvedAt:      reported.Add(30 * time.Minute),
		ResponseMinutes: &minutes,
		Summary:         "Handled on site",
		SummaryDetails:  SummaryDetails{Student: "Maria Cruz", Admin: "Dana Reyes", Location: "Main Hall", Category: "fire"},
	}
	require.NoError(t, s.Insert(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}
