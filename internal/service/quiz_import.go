package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"pmsf-backend/internal/apperr"
)

// ImportQuestions parses a question sheet. Columns are question, correct
// answer, score, then any number of wrong answers. A first row whose first
// cell mentions "question" is treated as a header.
func ImportQuestions(filename string, r io.Reader) ([]QuestionInput, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err = cr.ReadAll()
	case ".xlsx":
		rows, err = readFirstSheet(r)
	default:
		return nil, apperr.Validation("unsupported file type (use csv or xlsx)", nil)
	}
	if err != nil {
		return nil, apperr.Validation("could not read file", []string{err.Error()})
	}
	return parseQuestionRows(rows)
}

func readFirstSheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func parseQuestionRows(rows [][]string) ([]QuestionInput, error) {
	var (
		out  []QuestionInput
		msgs []string
	)
	for i, row := range rows {
		line := i + 1
		if i == 0 && len(row) > 0 && strings.Contains(strings.ToLower(row[0]), "question") {
			continue
		}
		if blankRow(row) {
			continue
		}
		if len(row) < 3 {
			msgs = append(msgs, fmt.Sprintf("row %d: expected question, correct answer and score", line))
			continue
		}
		score, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil || !score.IsPositive() {
			msgs = append(msgs, fmt.Sprintf("row %d: score must be a positive number", line))
			continue
		}
		q := QuestionInput{
			Text:          strings.TrimSpace(row[0]),
			CorrectAnswer: strings.TrimSpace(row[1]),
			Score:         score,
		}
		if q.Text == "" || q.CorrectAnswer == "" {
			msgs = append(msgs, fmt.Sprintf("row %d: question and correct answer are required", line))
			continue
		}
		for _, w := range row[3:] {
			if w = strings.TrimSpace(w); w != "" {
				q.WrongAnswers = append(q.WrongAnswers, w)
			}
		}
		out = append(out, q)
	}
	if len(msgs) > 0 {
		return nil, apperr.Validation("Import failed", msgs)
	}
	if len(out) == 0 {
		return nil, apperr.Validation("Import failed", []string{"no questions found"})
	}
	return out, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
