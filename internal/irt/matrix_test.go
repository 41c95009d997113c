package irt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tri-scoring/backend/internal/models"
)

func TestNewResponseMatrixPivots(t *testing.T) {
	records := []models.ResponseRecord{
		{StudentID: "b", ItemID: 20, Correct: 1},
		{StudentID: "a", ItemID: 10, Correct: 0},
		{StudentID: "a", ItemID: 20, Correct: 1},
		{StudentID: "c", ItemID: 10, Correct: 1},
	}
	m, err := NewResponseMatrix(records)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, m.Students)
	assert.Equal(t, []int{10, 20}, m.Items)

	j, ok := m.ItemIndex(20)
	require.True(t, ok)
	assert.Equal(t, 1, j)
	_, ok = m.ItemIndex(99)
	assert.False(t, ok)

	// b never answered item 10: the cell stays missing, not wrong.
	assert.True(t, IsMissing(m.Row(1)[0]))
	assert.Equal(t, 2, m.ValidCount(0))
	assert.InDelta(t, 0.5, m.ProportionCorrect(0), 1e-12)
	assert.InDelta(t, 1.0, m.ProportionCorrect(1), 1e-12)
	assert.Equal(t, 1, m.CorrectCount(0))
	assert.Equal(t, 1, m.AnsweredCount(1))

	col := m.Column(0)
	assert.Equal(t, 0.0, col[0])
	assert.True(t, IsMissing(col[1]))
	assert.Equal(t, 1.0, col[2])
}

func TestNewResponseMatrixRejects(t *testing.T) {
	_, err := NewResponseMatrix(nil)
	assert.ErrorIs(t, err, ErrEmptyResponses)

	_, err = NewResponseMatrix([]models.ResponseRecord{{StudentID: "a", ItemID: 1, Correct: 2}})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = NewResponseMatrix([]models.ResponseRecord{
		{StudentID: "a", ItemID: 1, Correct: 1},
		{StudentID: "a", ItemID: 1, Correct: 0},
	})
	assert.ErrorIs(t, err, ErrDuplicateResponse)
}

func TestParametersFor(t *testing.T) {
	m, err := NewResponseMatrix([]models.ResponseRecord{
		{StudentID: "a", ItemID: 3, Correct: 1},
		{StudentID: "a", ItemID: 1, Correct: 0},
	})
	require.NoError(t, err)

	ordered, missing := m.ParametersFor(map[int]models.ItemParameters{
		3: {ItemID: 3, A: 2, B: 1, C: 0.1},
	})
	assert.Equal(t, []int{1}, missing)
	assert.Equal(t, models.DefaultItem(1), ordered[0])
	assert.Equal(t, 2.0, ordered[1].A)
}
