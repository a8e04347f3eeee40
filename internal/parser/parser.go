package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"sheet-rag/internal/config"
	"sheet-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xuri/excelize/v2"
)

// Separators tried in order: paragraph, line, sentence, word, character.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// LoadRows opens the active sheet of the workbook at filePath and renders every row as
// its non-empty cell values joined by single spaces. Empty rows produce "".
func LoadRows(filePath, reader string) ([]string, error) {
	var (
		rows []string
		err  error
	)
	switch reader {
	case config.ReaderXLSX:
		rows, err = loadXLSX(filePath)
	case config.ReaderExcelize, "":
		rows, err = loadExcelize(filePath)
	default:
		return nil, fmt.Errorf("%w: unsupported sheet reader %q", models.ErrLoad, reader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrLoad, filepath.Base(filePath), err)
	}

	log.Debug().Str("file", filePath).Str("reader", reader).Int("rows", len(rows)).Msg("Loaded rows")
	return rows, nil
}

func loadExcelize(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheetName := f.GetSheetName(f.GetActiveSheetIndex())
	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheetName = sheets[0]
	}

	cells, err := f.GetRows(sheetName)
	if err != nil {
		return nil, err
	}

	rows := make([]string, 0, len(cells))
	for _, row := range cells {
		rows = append(rows, joinCells(row))
	}
	return rows, nil
}

func loadXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, "")
			continue
		}
		values := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			if cell == nil {
				continue
			}
			values = append(values, cell.String())
		}
		rows = append(rows, joinCells(values))
	}
	return rows, nil
}

func joinCells(cells []string) string {
	values := make([]string, 0, len(cells))
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		values = append(values, cell)
	}
	return strings.Join(values, " ")
}

// NewSplitter returns a recursive character splitter measuring length in runes.
func NewSplitter(chunkSize, chunkOverlap int) textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(separators),
	)
}

// SplitRows splits every non-blank row into chunks, preserving row order. Each chunk
// records the source file name and the 1-based row it came from.
func SplitRows(splitter textsplitter.TextSplitter, rows []string, source string) ([]schema.Document, error) {
	var chunks []schema.Document
	for i, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		texts, err := splitter.SplitText(row)
		if err != nil {
			return nil, fmt.Errorf("failed to split row %d: %w", i+1, err)
		}
		for _, text := range texts {
			if text == "" {
				continue
			}
			chunks = append(chunks, schema.Document{
				PageContent: text,
				Metadata: map[string]any{
					models.MetaSource: source,
					models.MetaRow:    i + 1,
				},
			})
		}
	}
	return chunks, nil
}

// RowLabel formats chunk provenance as file#row.
func RowLabel(metadata map[string]string) string {
	source := metadata[models.MetaSource]
	row := metadata[models.MetaRow]
	if row == "" {
		return source
	}
	return source + "#" + row
}
