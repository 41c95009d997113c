package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tri-scoring/backend/internal/equating"
	"github.com/tri-scoring/backend/internal/models"
	"github.com/tri-scoring/backend/internal/scoring"
)

func writeFile(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log", "prod"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()
	var records []models.ResponseRecord
	for _, s := range []string{"ana", "bia"} {
		for i := 1; i <= 4; i++ {
			records = append(records, models.ResponseRecord{StudentID: s, ItemID: i, Correct: i % 2})
		}
	}
	responses := writeFile(t, dir, "responses.json", records)

	out, err := run(t, "score", "--responses", responses)
	require.NoError(t, err)

	var res scoring.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Empty(t, res.Warnings)
	results := res.Students
	require.Len(t, results, 2)
	assert.Equal(t, "ana", results[0].StudentID)
	assert.Equal(t, 2, results[0].CorrectCount)
	assert.Equal(t, 4, results[0].TotalItems)

	outFile := filepath.Join(dir, "out.json")
	_, err = run(t, "score", "--responses", responses, "--out", outFile)
	require.NoError(t, err)
	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"student_id": "bia"`)
}

func TestScoreCommandParameterMismatch(t *testing.T) {
	dir := t.TempDir()
	responses := writeFile(t, dir, "r.json", []models.ResponseRecord{{StudentID: "a", ItemID: 1, Correct: 1}})
	params := writeFile(t, dir, "p.json", []models.ItemParameters{models.DefaultItem(2)})

	_, err := run(t, "score", "--responses", responses, "--params", params)
	assert.ErrorIs(t, err, scoring.ErrItemCountMismatch)
}

func TestInvalidParametersAreRejected(t *testing.T) {
	dir := t.TempDir()
	var records []models.ResponseRecord
	for _, s := range []string{"a", "b"} {
		for i := 1; i <= 3; i++ {
			records = append(records, models.ResponseRecord{StudentID: s, ItemID: i, Correct: i % 2})
		}
	}
	responses := writeFile(t, dir, "r.json", records)
	bad := []models.ItemParameters{
		{ItemID: 1, A: -1, B: 0, C: 0.2},
		{ItemID: 2, A: 1, B: 0, C: 0.2},
		{ItemID: 3, A: 1, B: 0, C: 0.2},
	}
	params := writeFile(t, dir, "p.json", bad)

	var verr *models.ValidationError
	_, err := run(t, "score", "--responses", responses, "--params", params)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "item parameters", verr.Subject)

	_, err = run(t, "calibrate", "--responses", responses, "--anchors", params)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "anchor parameters", verr.Subject)
}

func TestEquateAndRecommendCommands(t *testing.T) {
	dir := t.TempDir()
	anchors := []models.ItemParameters{
		{ItemID: 1, A: 1, B: -1, C: 0.2},
		{ItemID: 2, A: 1.2, B: 0, C: 0.2},
		{ItemID: 3, A: 0.9, B: 1, C: 0.2},
	}
	a := writeFile(t, dir, "anchors.json", anchors)

	out, err := run(t, "equate", "--old-anchors", a, "--new-anchors", a)
	require.NoError(t, err)
	var res equating.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 1.0, res.Transformation.Slope, 1e-9)

	pool := writeFile(t, dir, "pool.json", append(anchors, models.ItemParameters{ItemID: 4, A: 2, B: 0, C: 0}))
	out, err = run(t, "recommend", "--anchors", a, "--pool", pool, "--count", "5")
	require.NoError(t, err)
	var recs []equating.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].Item.ItemID)

	_, err = run(t, "recommend")
	assert.Error(t, err, "--pool is required")
}
