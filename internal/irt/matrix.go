package irt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tri-scoring/backend/internal/models"
)

var (
	ErrDuplicateResponse = errors.New("duplicate response for student and item")
	ErrInvalidResponse   = errors.New("response must be 0 or 1")
	ErrEmptyResponses    = errors.New("no responses")
)

// ResponseMatrix pivots response records into students (rows, sorted by id)
// by items (columns, ascending id). Unanswered cells hold Missing; they are
// never treated as incorrect.
type ResponseMatrix struct {
	Students []string
	Items    []int

	cells        [][]float64
	itemIndex    map[int]int
	studentIndex map[string]int
}

func NewResponseMatrix(records []models.ResponseRecord) (*ResponseMatrix, error) {
	if len(records) == 0 {
		return nil, ErrEmptyResponses
	}

	studentSet := make(map[string]struct{})
	itemSet := make(map[int]struct{})
	for _, r := range records {
		if r.Correct != 0 && r.Correct != 1 {
			return nil, fmt.Errorf("student %s item %d: %w (got %d)", r.StudentID, r.ItemID, ErrInvalidResponse, r.Correct)
		}
		studentSet[r.StudentID] = struct{}{}
		itemSet[r.ItemID] = struct{}{}
	}

	m := &ResponseMatrix{
		Students:     make([]string, 0, len(studentSet)),
		Items:        make([]int, 0, len(itemSet)),
		itemIndex:    make(map[int]int, len(itemSet)),
		studentIndex: make(map[string]int, len(studentSet)),
	}
	for s := range studentSet {
		m.Students = append(m.Students, s)
	}
	for it := range itemSet {
		m.Items = append(m.Items, it)
	}
	sort.Strings(m.Students)
	sort.Ints(m.Items)
	for i, s := range m.Students {
		m.studentIndex[s] = i
	}
	for j, it := range m.Items {
		m.itemIndex[it] = j
	}

	m.cells = make([][]float64, len(m.Students))
	for i := range m.cells {
		row := make([]float64, len(m.Items))
		for j := range row {
			row[j] = Missing
		}
		m.cells[i] = row
	}
	for _, r := range records {
		i, j := m.studentIndex[r.StudentID], m.itemIndex[r.ItemID]
		if !IsMissing(m.cells[i][j]) {
			return nil, fmt.Errorf("student %s item %d: %w", r.StudentID, r.ItemID, ErrDuplicateResponse)
		}
		m.cells[i][j] = float64(r.Correct)
	}
	return m, nil
}

func (m *ResponseMatrix) NumStudents() int { return len(m.Students) }
func (m *ResponseMatrix) NumItems() int    { return len(m.Items) }

func (m *ResponseMatrix) ItemIndex(itemID int) (int, bool) {
	j, ok := m.itemIndex[itemID]
	return j, ok
}

// Row returns student i's responses in column order. The slice is shared.
func (m *ResponseMatrix) Row(i int) []float64 {
	return m.cells[i]
}

// Column returns a copy of item j's responses in student order.
func (m *ResponseMatrix) Column(j int) []float64 {
	col := make([]float64, len(m.cells))
	for i, row := range m.cells {
		col[i] = row[j]
	}
	return col
}

func (m *ResponseMatrix) ValidCount(j int) int {
	n := 0
	for _, row := range m.cells {
		if !IsMissing(row[j]) {
			n++
		}
	}
	return n
}

// ProportionCorrect is the share of answered cells in column j that are correct.
func (m *ResponseMatrix) ProportionCorrect(j int) float64 {
	var n, k int
	for _, row := range m.cells {
		if IsMissing(row[j]) {
			continue
		}
		n++
		if row[j] == 1 {
			k++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(k) / float64(n)
}

// CorrectCount counts student i's correct answers; missing cells count as not correct.
func (m *ResponseMatrix) CorrectCount(i int) int {
	n := 0
	for _, y := range m.cells[i] {
		if y == 1 {
			n++
		}
	}
	return n
}

func (m *ResponseMatrix) AnsweredCount(i int) int {
	n := 0
	for _, y := range m.cells[i] {
		if !IsMissing(y) {
			n++
		}
	}
	return n
}

// ParametersFor orders params to match the matrix columns. Items without a
// row in params are reported in missing.
func (m *ResponseMatrix) ParametersFor(params map[int]models.ItemParameters) (ordered []models.ItemParameters, missing []int) {
	ordered = make([]models.ItemParameters, len(m.Items))
	for j, id := range m.Items {
		p, ok := params[id]
		if !ok {
			missing = append(missing, id)
			p = models.DefaultItem(id)
		}
		ordered[j] = p
	}
	return ordered, missing
}
