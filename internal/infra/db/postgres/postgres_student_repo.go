package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/repository"
)

var _ repository.StudentDirectory = (*PostgresStudentRepo)(nil)

// PostgresStudentRepo serves the imported national student directory and the
// locally stored exam results.
type PostgresStudentRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresStudentRepo(pool *pgxpool.Pool) *PostgresStudentRepo {
	return &PostgresStudentRepo{pool: pool}
}

const studentColumns = `id, exam_no, name, governorate, gov_code, school, school_code, sex_code`

func (r *PostgresStudentRepo) SearchByName(ctx context.Context, name, governorate string, limit, offset int) (*model.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT ` + studentColumns + `
  FROM students
 WHERE name ILIKE '%' || $1 || '%'
   AND ($2 = '' OR governorate = $2)
 ORDER BY name, exam_no
 LIMIT $3 OFFSET $4;
`
	rows, err := r.pool.Query(ctx, q, name, governorate, limit+1, offset)
	if err != nil {
		return nil, fmt.Errorf("search students by name: %w", err)
	}
	defer rows.Close()

	var students []*model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One extra row was requested to detect a further page.
	hasMore := len(students) > limit
	if hasMore {
		students = students[:limit]
	}

	var total int
	const countQ = `
SELECT COUNT(*) FROM students
 WHERE name ILIKE '%' || $1 || '%'
   AND ($2 = '' OR governorate = $2);
`
	if err := r.pool.QueryRow(ctx, countQ, name, governorate).Scan(&total); err != nil {
		return nil, fmt.Errorf("count students by name: %w", err)
	}

	return &model.SearchResult{Students: students, TotalCount: total, HasMore: hasMore}, nil
}

func (r *PostgresStudentRepo) FindByExamNo(ctx context.Context, examNo string) (*model.Student, error) {
	const q = `SELECT ` + studentColumns + ` FROM students WHERE exam_no=$1;`
	s, err := scanStudent(r.pool.QueryRow(ctx, q, examNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find student %s: %w", examNo, err)
	}
	return s, nil
}

func (r *PostgresStudentRepo) FindResult(ctx context.Context, examNo string) (*model.ExamResult, error) {
	const q = `SELECT exam_no, status, final_grade, final_rate, subjects FROM results WHERE exam_no=$1;`

	var (
		result model.ExamResult
		raw    []byte
	)
	err := r.pool.QueryRow(ctx, q, examNo).Scan(&result.ExamNo, &result.Status, &result.FinalGrad, &result.FinalRate, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find result %s: %w", examNo, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result.Subjects); err != nil {
			return nil, fmt.Errorf("decode result %s subjects: %w", examNo, err)
		}
	}
	return &result, nil
}

func (r *PostgresStudentRepo) ListGovernorates(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT governorate FROM students WHERE governorate <> '' ORDER BY governorate;`)
	if err != nil {
		return nil, fmt.Errorf("list governorates: %w", err)
	}
	defer rows.Close()

	var govs []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		govs = append(govs, g)
	}
	return govs, rows.Err()
}

// ImportStudent inserts one directory row during a bulk load. Duplicate exam
// numbers map to domain.ErrInvalidArgument so the loader can count and skip.
func (r *PostgresStudentRepo) ImportStudent(ctx context.Context, s *model.Student) error {
	const q = `
INSERT INTO students (exam_no, name, governorate, gov_code, school, school_code, sex_code)
VALUES ($1,$2,$3,$4,$5,$6,$7);
`
	_, err := r.pool.Exec(ctx, q, s.ExamNo, s.Name, s.Governorate, s.GovCode, s.School, s.SchoolCode, s.SexCode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: duplicate exam number %s", domain.ErrInvalidArgument, s.ExamNo)
		}
		return fmt.Errorf("import student %s: %w", s.ExamNo, err)
	}
	return nil
}

// ImportResult upserts one locally stored exam result during a bulk load.
func (r *PostgresStudentRepo) ImportResult(ctx context.Context, result *model.ExamResult) error {
	raw, err := json.Marshal(result.Subjects)
	if err != nil {
		return fmt.Errorf("encode result %s subjects: %w", result.ExamNo, err)
	}
	const q = `
INSERT INTO results (exam_no, status, final_grade, final_rate, subjects)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (exam_no) DO UPDATE SET status=$2, final_grade=$3, final_rate=$4, subjects=$5;
`
	if _, err := r.pool.Exec(ctx, q, result.ExamNo, result.Status, result.FinalGrad, result.FinalRate, raw); err != nil {
		return fmt.Errorf("import result %s: %w", result.ExamNo, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row rowScanner) (*model.Student, error) {
	var s model.Student
	if err := row.Scan(&s.ID, &s.ExamNo, &s.Name, &s.Governorate, &s.GovCode, &s.School, &s.SchoolCode, &s.SexCode); err != nil {
		return nil, err
	}
	return &s, nil
}
