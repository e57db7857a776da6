package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/scrollsafe/doomscroller/model"
)

func testRecord() model.AnalysisRecord {
	title := "A Title"
	return model.AnalysisRecord{
		Platform:    "youtube",
		VideoID:     "abc123",
		SourceURL:   "https://youtube.com/watch?v=abc123",
		Title:       &title,
		AnalyzedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Label:       model.LabelVerified,
		Confidence:  0.91,
		Reason:      "majority real",
		Features:    map[string]interface{}{"real_share": 0.8},
		ModelVersion: "doom_v1",
		FramePolicy: "even_16",
		BatchTimeMs: 812.5,
		FramesCount: 16,
	}
}

func TestUpsertAnalysisCommitsBothStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs("youtube", "abc123", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analyses").
		WithArgs("youtube", "abc123", sqlmock.AnyArg(), "verified", 0.91, "majority real", sqlmock.AnyArg(), "doom_v1", "even_16", 812.5, 16, "https://youtube.com/watch?v=abc123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertAnalysis(context.Background(), testRecord()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAnalysisRollsBackOnVideoUpsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err = s.UpsertAnalysis(context.Background(), testRecord())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySchemaExecutesEmbeddedDDL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS videos").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.ApplySchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
