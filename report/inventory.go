package report

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/deckport/blob"
)

const (
	lessonsSheet = "Lessons"
	imagesSheet  = "Images"
)

type InventoryLesson struct {
	ID       string
	Title    string
	Code     string
	Slides   int
	Images   int
	Uploaded string
}

type InventoryImage struct {
	LessonID    string
	SlideNumber int
	Filename    string
	StoragePath string
	InStorage   bool
}

// Inventory is a flat listing of every lesson and every image.
type Inventory struct {
	Lessons []InventoryLesson
	Images  []InventoryImage
}

// BuildInventory walks all lessons, newest first, and checks each image
// against the bucket.
func BuildInventory(ctx context.Context, src Source, objects Objects) (*Inventory, error) {
	lessons, err := src.ListLessons(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}

	inv := &Inventory{Lessons: []InventoryLesson{}, Images: []InventoryImage{}}
	for _, l := range lessons {
		slides, err := src.ListSlides(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("listing slides of %s: %w", l.ID, err)
		}
		row := InventoryLesson{ID: l.ID, Title: l.Title, Code: l.Code, Slides: len(slides), Uploaded: UploadDate(l.ID)}
		for _, sl := range slides {
			for _, img := range sl.Images {
				row.Images++
				ok := false
				if img.StoragePath != "" {
					ok, err = objects.Exists(img.StoragePath)
					if err != nil && !errors.Is(err, blob.ErrInvalidKey) {
						return nil, fmt.Errorf("checking %s: %w", img.StoragePath, err)
					}
				}
				inv.Images = append(inv.Images, InventoryImage{
					LessonID:    l.ID,
					SlideNumber: sl.SlideNumber,
					Filename:    img.Filename,
					StoragePath: img.StoragePath,
					InStorage:   ok,
				})
			}
		}
		inv.Lessons = append(inv.Lessons, row)
	}
	return inv, nil
}

// WriteInventoryXLSX writes the inventory as a workbook with a Lessons and
// an Images sheet.
func WriteInventoryXLSX(w io.Writer, inv *Inventory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", lessonsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(imagesSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"3498DB"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	lessonRows := [][]any{{"Lesson ID", "Title", "Code", "Slides", "Images", "Uploaded"}}
	for _, l := range inv.Lessons {
		lessonRows = append(lessonRows, []any{l.ID, l.Title, l.Code, l.Slides, l.Images, l.Uploaded})
	}
	if err := writeSheet(f, lessonsSheet, lessonRows, header, []float64{40, 30, 30, 8, 8, 12}); err != nil {
		return err
	}

	imageRows := [][]any{{"Lesson ID", "Slide", "Filename", "Storage Path", "In Storage"}}
	for _, img := range inv.Images {
		imageRows = append(imageRows, []any{img.LessonID, img.SlideNumber, img.Filename, img.StoragePath, img.InStorage})
	}
	if err := writeSheet(f, imagesSheet, imageRows, header, []float64{40, 8, 50, 80, 10}); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any, headerStyle int, widths []float64) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return nil
}
