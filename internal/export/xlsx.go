package export

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"brickcat/internal"
	"brickcat/internal/enrich"
)

// RowsToXLSX writes rows with the given columns, followed by the resolved set
// and piece image URLs of each row.
func RowsToXLSX(columns []string, rows []internal.Row, images internal.BatchImages, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := append(append([]string{}, columns...), "img_lego", "img_pieza")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	legoURLs := urlsByKey(images.LegoImages)
	piezaURLs := urlsByKey(images.PiezaImages)

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		for c, name := range columns {
			set(c+1, cellValue(row[name]))
		}
		norm := enrich.Normalize(internal.RecordFromRow(row))
		set(len(columns)+1, legoURLs[norm.SetKey])
		set(len(columns)+2, piezaURLs[norm.PieceKey])
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func urlsByKey(images []internal.ImageResult) map[string]string {
	out := make(map[string]string, len(images))
	for _, img := range images {
		out[img.Key] = img.URL
	}
	return out
}

func cellValue(v any) any {
	if v == nil {
		return ""
	}
	return v
}
