package executions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/tri-scoring/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// Repository persists datasets, parameter sets, executions and their
// student results.
type Repository interface {
	CreateDataset(ctx context.Context, name string) (int64, error)
	CreateParameterSet(ctx context.Context, name string, isAnchor bool, items []models.ItemParameters) (int64, error)
	GetParameterSet(ctx context.Context, id int64) (*models.ParameterSet, error)
	CreateExecution(ctx context.Context, e *models.Execution) error
	FinishExecution(ctx context.Context, id int64, status models.ExecutionStatus, parametersSetID *int64, notes *string) error
	GetExecution(ctx context.Context, id int64) (*models.Execution, error)
	ListExecutions(ctx context.Context, limit, offset int) ([]models.Execution, error)
	SaveResults(ctx context.Context, executionID int64, results []models.StudentResult) error
	ListResults(ctx context.Context, executionID int64) ([]models.StudentResult, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Datasets & Parameter Sets ───────────────────────────

func (s *Store) CreateDataset(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO datasets (name, source_type) VALUES ($1, 'json') RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create dataset: %w", err)
	}
	return id, nil
}

func (s *Store) CreateParameterSet(ctx context.Context, name string, isAnchor bool, items []models.ItemParameters) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create parameter set: %w", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO parameters_sets (name, is_anchor) VALUES ($1, $2) RETURNING id`,
		name, isAnchor,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("create parameter set: %w", err)
	}

	ids := make([]int64, len(items))
	as := make([]float64, len(items))
	bs := make([]float64, len(items))
	cs := make([]float64, len(items))
	anchors := make([]bool, len(items))
	methods := make([]string, len(items))
	for i, it := range items {
		ids[i], as[i], bs[i], cs[i] = int64(it.ItemID), it.A, it.B, it.C
		anchors[i] = it.IsAnchor()
		methods[i] = string(it.Method)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item_parameters (parameters_set_id, item_id, a, b, c, is_anchor, method)
		 SELECT $1, t.item_id, t.a, t.b, t.c, t.is_anchor, NULLIF(t.method, '')
		 FROM unnest($2::int[], $3::float8[], $4::float8[], $5::float8[], $6::bool[], $7::text[])
		      AS t(item_id, a, b, c, is_anchor, method)`,
		id, pq.Array(ids), pq.Array(as), pq.Array(bs), pq.Array(cs), pq.Array(anchors), pq.Array(methods),
	); err != nil {
		return 0, fmt.Errorf("insert item parameters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create parameter set: %w", err)
	}
	return id, nil
}

func (s *Store) GetParameterSet(ctx context.Context, id int64) (*models.ParameterSet, error) {
	var ps models.ParameterSet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_anchor, created_at FROM parameters_sets WHERE id = $1`, id,
	).Scan(&ps.ID, &ps.Name, &ps.IsAnchor, &ps.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get parameter set: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, a, b, c, is_anchor, COALESCE(method, '')
		 FROM item_parameters WHERE parameters_set_id = $1 ORDER BY item_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get item parameters: %w", err)
	}
	defer rows.Close()

	ps.Items = []models.ItemParameters{}
	for rows.Next() {
		var p models.ItemParameters
		var anchor bool
		var method string
		if err := rows.Scan(&p.ItemID, &p.A, &p.B, &p.C, &anchor, &method); err != nil {
			return nil, fmt.Errorf("scan item parameters: %w", err)
		}
		p.Method = models.Method(method)
		if anchor {
			p.Role = models.RoleAnchor
		} else {
			p.Role = models.RoleCalibrated
		}
		ps.Items = append(ps.Items, p)
	}
	return &ps, rows.Err()
}

// ── Executions ──────────────────────────────────────────

const executionCols = `id, run_id, kind, dataset_id, parameters_set_id, method, status, notes, created_at`

func scanExecution(row interface{ Scan(...any) error }) (models.Execution, error) {
	var e models.Execution
	err := row.Scan(&e.ID, &e.RunID, &e.Kind, &e.DatasetID, &e.ParametersSetID,
		&e.Method, &e.Status, &e.Notes, &e.CreatedAt)
	return e, err
}

func (s *Store) CreateExecution(ctx context.Context, e *models.Execution) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO executions (run_id, kind, dataset_id, parameters_set_id, method, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.RunID, e.Kind, e.DatasetID, e.ParametersSetID, e.Method, e.Status, e.Notes,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (s *Store) FinishExecution(ctx context.Context, id int64, status models.ExecutionStatus, parametersSetID *int64, notes *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions
		 SET status = $1, parameters_set_id = COALESCE($2, parameters_set_id), notes = COALESCE($3, notes)
		 WHERE id = $4`,
		status, parametersSetID, notes, id,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	e, err := scanExecution(s.db.QueryRowContext(ctx,
		`SELECT `+executionCols+` FROM executions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return &e, nil
}

func (s *Store) ListExecutions(ctx context.Context, limit, offset int) ([]models.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionCols+` FROM executions ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	out := []models.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Student Results ─────────────────────────────────────

func (s *Store) SaveResults(ctx context.Context, executionID int64, results []models.StudentResult) error {
	students := make([]string, len(results))
	thetas := make([]float64, len(results))
	scores := make([]float64, len(results))
	correct := make([]int64, len(results))
	totals := make([]int64, len(results))
	for i, r := range results {
		students[i], thetas[i], scores[i] = r.StudentID, r.Theta, r.Score
		correct[i], totals[i] = int64(r.CorrectCount), int64(r.TotalItems)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO student_results (execution_id, student_id, theta, score, correct_count, total_items)
		 SELECT $1, t.student_id, t.theta, t.score, t.correct_count, t.total_items
		 FROM unnest($2::text[], $3::float8[], $4::float8[], $5::int[], $6::int[])
		      AS t(student_id, theta, score, correct_count, total_items)`,
		executionID, pq.Array(students), pq.Array(thetas), pq.Array(scores), pq.Array(correct), pq.Array(totals),
	)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, executionID int64) ([]models.StudentResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, theta, score, correct_count, total_items
		 FROM student_results WHERE execution_id = $1 ORDER BY student_id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []models.StudentResult{}
	for rows.Next() {
		var r models.StudentResult
		if err := rows.Scan(&r.StudentID, &r.Theta, &r.Score, &r.CorrectCount, &r.TotalItems); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
