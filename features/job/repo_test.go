package job_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divyansh-Kumawat/ocean-ai/features/job"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	j := &job.Job{
		SourceID: "src-1",
		Handler:  "embedder-worker",
		Payload:  json.RawMessage(`{"chunk_id": "c1"}`),
		Error:    "gave up after 5 attempts",
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO failed_jobs (source_id, handler, payload, error) VALUES ($1, $2, $3, $4) RETURNING id, created_at, retries")).
		WithArgs(j.SourceID, j.Handler, []byte(j.Payload), j.Error).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "retries"}).AddRow("1", time.Now(), 0))

	require.NoError(t, repo.Save(context.Background(), j))
	assert.Equal(t, "1", j.ID)
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "source_id", "handler", "payload", "error", "retries", "created_at"}).
		AddRow("1", "src-1", "embedder-worker", []byte(`{}`), "boom", 0, time.Now())

	mock.ExpectQuery("FROM failed_jobs ORDER BY created_at DESC").
		WillReturnRows(rows)

	jobs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "embedder-worker", jobs[0].Handler)
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM failed_jobs WHERE id = $1")).
		WithArgs("1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.Delete(context.Background(), "1"))
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM failed_jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
