package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weather-pipeline/pkg/batch/config"
	"github.com/tigerroll/weather-pipeline/pkg/batch/database"
	core "github.com/tigerroll/weather-pipeline/pkg/batch/job/core"
	"github.com/tigerroll/weather-pipeline/pkg/batch/repository"
	"github.com/tigerroll/weather-pipeline/pkg/batch/util/exception"
)

func newRepo(t *testing.T) *repository.RunRepository {
	t.Helper()
	cfg := config.DatabaseConfig{Type: "sqlite3", Database: filepath.Join(t.TempDir(), "runs.db")}
	require.NoError(t, database.RunMigrations(context.Background(), cfg))
	repo, err := repository.NewRunRepository(cfg)
	require.NoError(t, err)
	return repo
}

func TestRunRepository_SaveAndFind(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := core.NewRunExecution("San Francisco")
	require.NoError(t, run.TransitionTo(core.StatusFetching))
	run.Attempts = 3
	require.NoError(t, run.MarkFailed(exception.StageFetch, errors.New("upstream 503")))

	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.FindRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "San Francisco", got.Location)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, exception.StageFetch, got.FailedStage)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, "upstream 503", got.ErrorMessage)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestRunRepository_SinkWarningsCounted(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := core.NewRunExecution("Tokyo")
	require.NoError(t, run.TransitionTo(core.StatusFetching))
	require.NoError(t, run.TransitionTo(core.StatusTransforming))
	require.NoError(t, run.TransitionTo(core.StatusPersisting))
	run.Attempts = 1
	run.AddSinkWarning(errors.New("relational sink down"))
	require.NoError(t, run.MarkDone())

	require.NoError(t, repo.SaveRun(ctx, run))
	got, err := repo.FindRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDone, got.Status)
	assert.Equal(t, exception.Stage(""), got.FailedStage)
	assert.Equal(t, 1, got.SinkWarnings)
	assert.Empty(t, got.ErrorMessage)
}

func TestRunRepository_FindMissing(t *testing.T) {
	repo := newRepo(t)
	got, err := repo.FindRun(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunRepository_MissingTableIsPersistenceError(t *testing.T) {
	cfg := config.DatabaseConfig{Type: "sqlite3", Database: filepath.Join(t.TempDir(), "empty.db")}
	repo, err := repository.NewRunRepository(cfg)
	require.NoError(t, err)

	err = repo.SaveRun(context.Background(), core.NewRunExecution("x"))
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindPersistence))
}
