// Package export writes the appointment list to an Excel workbook.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"agendamed/internal/model"
)

const sheetName = "Agendamentos"

var header = []string{"ID", "Nome", "E-mail", "Telefone", "Serviço", "Data", "Hora", "Status", "Criado em"}

// WriteXLSX writes appointments to w as an .xlsx workbook, one row per
// appointment, sorted chronologically.
func WriteXLSX(w io.Writer, appointments []model.Appointment) error {
	sorted := append([]model.Appointment(nil), appointments...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SortKey() < sorted[j].SortKey()
	})

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	if err := writeRow(f, 1, toCells(header)); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheetName, startCell, endCell, style)
	}

	for i, apt := range sorted {
		row := []interface{}{
			apt.ID, apt.Name, apt.Email, apt.Phone, apt.Service,
			apt.Date, apt.Time, string(apt.Status), apt.CreatedAt,
		}
		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}
