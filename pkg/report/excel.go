package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Geniuskaa/maraton_registration/pkg/admin"
	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
)

const (
	SHEET_NAME = "Sheet1"

	// Constants for export protection
	MAX_ROWS = 50000
)

var Header = []interface{}{"ID", "Folio", "Plantel", "Nombre", "Alumno", "Grado", "Rol", "Categoría", "Creado"}

var errTooManyRows = errors.New("too many rows for one workbook")

// Workbook renders the participant list as an xlsx file, one row per record
// after a bold header row.
func Workbook(rows []api.ParticipantRecord, loc *time.Location) ([]byte, error) {
	if len(rows) > MAX_ROWS {
		return nil, fmt.Errorf("Workbook failed: %w: %d", errTooManyRows, len(rows))
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetRow(SHEET_NAME, "A1", &Header); err != nil {
		return nil, fmt.Errorf("f.SetSheetRow failed: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("f.NewStyle failed: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return nil, fmt.Errorf("excelize.CoordinatesToCellName failed: %w", err)
	}
	if err := f.SetCellStyle(SHEET_NAME, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("f.SetCellStyle failed: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("excelize.CoordinatesToCellName failed: %w", err)
		}

		values := []interface{}{
			r.ID,
			r.Clave,
			r.Plantel,
			r.FullName,
			r.ChildName,
			r.Grado,
			r.Role,
			registration.RoleLabel(r.Role),
			admin.FormatDateTime(r.CreatedAt, loc),
		}
		if err := f.SetSheetRow(SHEET_NAME, cell, &values); err != nil {
			return nil, fmt.Errorf("f.SetSheetRow failed: %w", err)
		}
	}

	if err := f.SetColWidth(SHEET_NAME, "B", "I", 22); err != nil {
		return nil, fmt.Errorf("f.SetColWidth failed: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("f.WriteToBuffer failed: %w", err)
	}
	return buf.Bytes(), nil
}
