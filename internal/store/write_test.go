package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgconform/internal/harness"
	"github.com/roach88/dbgconform/internal/testutil"
)

func TestWriteRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	result := runScenario(t, testutil.FixedID("run-0001"), intVarsScenario(), passingOutputs)

	require.NoError(t, s.WriteRun(ctx, result))

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)

	assert.Equal(t, harness.Transcript(result), harness.Transcript(got))
	assert.Equal(t, result.Fingerprint, got.Fingerprint)
	assert.True(t, got.Pass)
	assert.True(t, result.StartedAt.Equal(got.StartedAt), "started_at %v != %v", result.StartedAt, got.StartedAt)
	assert.Equal(t, result.Duration, got.Duration)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, result.Steps[1].Duration, got.Steps[1].Duration)
}

func TestWriteRun_FailureDetails(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	result := runScenario(t, testutil.FixedID("run-fail"), intVarsScenario(), failingOutputs)
	require.False(t, result.Pass)

	require.NoError(t, s.WriteRun(ctx, result))
	got, err := s.ReadRun(ctx, "run-fail")
	require.NoError(t, err)

	assert.Equal(t, harness.OutcomeFailed, got.Outcome)
	assert.Equal(t, harness.StateFailed, got.State)
	assert.Equal(t, "pattern_mismatch", got.ErrorKind)
	assert.Equal(t, result.Error, got.Error)
	assert.Equal(t, "$R1: Int = <overflow>\n", got.Steps[1].Output)
	assert.Equal(t, "pattern_mismatch", got.Steps[1].ErrorKind)
}

func TestWriteRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	result := runScenario(t, testutil.FixedID("run-0001"), intVarsScenario(), passingOutputs)

	require.NoError(t, s.WriteRun(ctx, result))
	require.NoError(t, s.WriteRun(ctx, result))

	var runs, steps int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runs))
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM steps").Scan(&steps))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, steps)
}

func TestWriteRun_RequiresRunID(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.WriteRun(context.Background(), &harness.Result{}))
	assert.Error(t, s.WriteRun(context.Background(), nil))
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
