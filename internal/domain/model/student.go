package model

import "strings"

// Student is one row of the national student directory. Exam numbers are the
// unique key; everything else is display data.
type Student struct {
	ID          int64
	ExamNo      string
	Name        string
	Governorate string
	GovCode     string
	School      string
	SchoolCode  string
	SexCode     string
}

// SubjectScore is a single graded subject inside an ExamResult.
type SubjectScore struct {
	Name  string
	Score string
}

// ExamResult holds the locally stored result for one exam number.
type ExamResult struct {
	ExamNo    string
	Status    string
	FinalGrad string
	FinalRate string
	Subjects  []SubjectScore
}

// SearchResult is one page of a name search.
type SearchResult struct {
	Students   []*Student
	TotalCount int
	HasMore    bool
}

// GenderLabel maps the directory sex codes to the Arabic display label.
func (s *Student) GenderLabel() string {
	switch strings.TrimSpace(s.SexCode) {
	case "M", "1":
		return "ذكر"
	case "F", "2":
		return "أنثى"
	default:
		if s.SexCode == "" {
			return "غير متوفر"
		}
		return s.SexCode
	}
}
