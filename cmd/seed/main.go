// File: cmd/seed/main.go
// seed loads the student directory and, optionally, exam results from the
// ministry CSV exports into postgres.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"telegram-results-bot/internal/config"
	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	pg "telegram-results-bot/internal/infra/db/postgres"
	"telegram-results-bot/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config yaml")
	studentsPath := flag.String("students", "", "students CSV: exam_no,name,governorate,gov_code,school,school_code,sex_code")
	resultsPath := flag.String("results", "", "results CSV: exam_no,status,final_grade,final_rate")
	flag.Parse()

	if *studentsPath == "" && *resultsPath == "" {
		log.Fatal("nothing to do: pass -students and/or -results")
	}

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewPostgresStudentRepo(pool)

	if *studentsPath != "" {
		imported, skipped, err := loadStudents(ctx, repo, *studentsPath)
		if err != nil {
			log.Fatalf("students: %v", err)
		}
		log.Printf("students: %d imported, %d skipped", imported, skipped)
	}
	if *resultsPath != "" {
		imported, err := loadResults(ctx, repo, *resultsPath)
		if err != nil {
			log.Fatalf("results: %v", err)
		}
		log.Printf("results: %d imported", imported)
	}
}

func loadStudents(ctx context.Context, repo *pg.PostgresStudentRepo, path string) (imported, skipped int, err error) {
	err = eachRecord(path, 7, func(line int, rec []string) error {
		examNo, ok := usecase.CleanExamNumber(rec[0])
		if !ok {
			log.Printf("line %d: bad exam number %q, skipping", line, rec[0])
			skipped++
			return nil
		}
		student := &model.Student{
			ExamNo:      examNo,
			Name:        rec[1],
			Governorate: rec[2],
			GovCode:     rec[3],
			School:      rec[4],
			SchoolCode:  rec[5],
			SexCode:     rec[6],
		}
		if err := repo.ImportStudent(ctx, student); err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				skipped++
				return nil
			}
			return err
		}
		imported++
		return nil
	})
	return imported, skipped, err
}

func loadResults(ctx context.Context, repo *pg.PostgresStudentRepo, path string) (imported int, err error) {
	err = eachRecord(path, 4, func(line int, rec []string) error {
		examNo, ok := usecase.CleanExamNumber(rec[0])
		if !ok {
			log.Printf("line %d: bad exam number %q, skipping", line, rec[0])
			return nil
		}
		result := &model.ExamResult{
			ExamNo:    examNo,
			Status:    rec[1],
			FinalGrad: rec[2],
			FinalRate: rec[3],
		}
		if err := repo.ImportResult(ctx, result); err != nil {
			return err
		}
		imported++
		return nil
	})
	return imported, err
}

// eachRecord streams a headered CSV, calling fn per data row.
func eachRecord(path string, minFields int, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil { // header
		return fmt.Errorf("read header: %w", err)
	}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < minFields {
			log.Printf("line %d: expected %d fields, got %d, skipping", line, minFields, len(rec))
			continue
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}
