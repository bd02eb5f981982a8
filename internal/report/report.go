// Package report exports learner progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// SheetName is the worksheet holding the progress table.
const SheetName = "Progress"

var header = []any{
	"Story", "Title", "Parts", "Completed", "Current part", "Story completed",
	"Checkpoint 4", "Checkpoint 8", "Checkpoint 12",
	"Quiz status", "Quiz score", "Quiz attempts", "XP", "Badge",
}

// Row is one story's line in the report.
type Row struct {
	StoryID        string
	Title          string
	TotalParts     int
	CompletedParts int
	CurrentPart    int // 1-based
	StoryCompleted bool
	Checkpoints    [3]progress.CheckpointStatus // parts 4, 8 and 12
	QuizStatus     string
	QuizScore      string
	QuizAttempts   int
	XP             int
	Badge          string
}

// Collect reads the learner's records for every story.
func Collect(engine *progress.Engine, stories []content.Story) []Row {
	rows := make([]Row, 0, len(stories))
	for _, s := range stories {
		p := engine.Progress(s.ID)
		row := Row{
			StoryID:        s.ID,
			Title:          s.Title,
			TotalParts:     s.TotalParts(),
			CompletedParts: len(p.CompletedParts),
			CurrentPart:    p.CurrentPartIndex + 1,
			StoryCompleted: p.IsStoryCompleted,
			QuizStatus:     "not taken",
		}
		for i, part := range progress.GatedParts() {
			row.Checkpoints[i] = engine.CheckpointState(s.ID, part).Status
		}
		if rec, ok := engine.QuizRecord(s.ID); ok {
			row.QuizStatus = string(rec.Status)
			row.QuizScore = fmt.Sprintf("%d/%d", rec.Score, rec.Total)
			row.QuizAttempts = rec.Attempts
		}
		if r, ok := engine.Reward(s.ID); ok {
			row.XP = r.XP
			if r.Badge != nil {
				row.Badge = *r.Badge
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Write renders rows as a workbook to w.
func Write(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			r.StoryID, r.Title, r.TotalParts, r.CompletedParts, r.CurrentPart, yesNo(r.StoryCompleted),
			string(r.Checkpoints[0]), string(r.Checkpoints[1]), string(r.Checkpoints[2]),
			r.QuizStatus, r.QuizScore, r.QuizAttempts, r.XP, r.Badge,
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "B", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
