package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

var exportHeaders = []string{
	"User ID", "Response ID", "Activity", "Partial", "Time Spent (s)",
	"Attempts Left", "Updated At", "Payload",
}

// ExportLesson renders userID's stored responses for lessonID as an xlsx
// workbook with one sheet per activity kind.
func ExportLesson(ctx context.Context, repo Repository, userID, lessonID string) ([]byte, error) {
	rows, err := repo.ListLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list lesson responses: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, ErrNotFound)
	}

	byKind := make(map[responses.Kind][]StoredResponse)
	for _, row := range rows {
		byKind[row.Kind] = append(byKind[row.Kind], row)
	}

	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, kind := range responses.Kinds() {
		kindRows, ok := byKind[kind]
		if !ok {
			continue
		}

		sheet := string(kind)
		index, err := f.NewSheet(sheet)
		if err != nil {
			return nil, fmt.Errorf("create %s sheet: %w", kind, err)
		}
		if first {
			f.SetActiveSheet(index)
			first = false
		}

		if err := writeSheet(f, sheet, kindRows); err != nil {
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows []StoredResponse) error {
	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}

	for i, row := range rows {
		payload, err := json.Marshal(row.Record.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		id := ""
		if row.Record.ID != nil {
			id = *row.Record.ID
		}

		values := []any{
			row.UserID,
			id,
			row.Record.AssociatedActivity,
			row.Record.PartialResponse,
			row.Record.TimeSpent,
			row.Record.AttemptsLeft,
			row.UpdatedAt.UTC().Format(time.RFC3339),
			string(payload),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
