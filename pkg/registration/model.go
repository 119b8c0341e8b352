package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Plantel string

const (
	Primaria     Plantel = "Primaria"
	Secundaria   Plantel = "Secundaria"
	Preparatoria Plantel = "Preparatoria"
)

var Planteles = []Plantel{Primaria, Secundaria, Preparatoria}

// Registration is what the form posts. It lives for one submission only.
type Registration struct {
	FullName  string `json:"full_name" validate:"required"`
	Plantel   string `json:"plantel" validate:"required,oneof=Primaria Secundaria Preparatoria"`
	ChildName string `json:"child_name"`
	Grado     string `json:"grado" validate:"required"`
	Role      string `json:"role" validate:"required"`
}

// GradoGroup is one <optgroup> of the grado select.
type GradoGroup struct {
	Plantel Plantel
	Grados  []string
}

// Grados are grouped by plantel for display only. Nothing checks that the
// chosen grado belongs to the chosen plantel.
var Grados = []GradoGroup{
	{Plantel: Primaria, Grados: []string{
		"1er Grado Primaria",
		"2do Grado Primaria",
		"3er Grado Primaria",
		"4to Grado Primaria",
		"5to Grado Primaria",
		"6to Grado Primaria",
	}},
	{Plantel: Secundaria, Grados: []string{
		"1er Grado Secundaria",
		"2do Grado Secundaria",
		"3er Grado Secundaria",
	}},
	{Plantel: Preparatoria, Grados: []string{
		"1er Semestre Preparatoria",
		"3er Semestre Preparatoria",
	}},
}

type Role struct {
	Value string
	Label string
}

// FormRoles are the categories offered on the public form.
var FormRoles = []Role{
	{Value: "ACOMPAÑANTE HOMBRE", Label: "Acompañante Hombre"},
	{Value: "ACOMPAÑANTE MUJER", Label: "Acompañante Mujer"},
	{Value: "ABUELITO", Label: "Abuelito"},
	{Value: "ABUELITA", Label: "Abuelita"},
}

// Categories is the full catalogue the backend knows about.
var Categories = []Role{
	{Value: "ACOMPAÑANTE HOMBRE", Label: "Acompañante Hombres"},
	{Value: "ACOMPAÑANTE MUJER", Label: "Acompañante Mujer"},
	{Value: "ABUELITO", Label: "Abuelito"},
	{Value: "ABUELITA", Label: "Abuelita"},
	{Value: "TUTOR", Label: "Tutor"},
	{Value: "ALUMNO", Label: "Alumno"},
	{Value: "ALUMNOS LMA BAJAH", Label: "ALUMNOS LMA Primaria (primaria baja hombres 1°, 2° y 3°)"},
	{Value: "ALUMNOS LMA BAJAM", Label: "ALUMNOS LMA Primaria (primaria baja mujeres 1°, 2° y 3°)"},
	{Value: "ALUMNOS LMA ALTAM", Label: "ALUMNOS LMA Primaria (primaria alta mujeres 4°, 5° y 6°)"},
	{Value: "ALUMNOS LMA ALTAH", Label: "ALUMNOS LMA Primaria (primaria alta hombres 4°, 5° y 6°)"},
	{Value: "ALUMNOS LMA SECH", Label: "ALUMNOS LMA Secundaria (hombres)"},
	{Value: "ALUMNOS LMA SECM", Label: "ALUMNOS LMA Secundaria (mujeres)"},
	{Value: "ALUMNOS LMA PREPH", Label: "ALUMNOS LMA Preparatoria (hombres)"},
	{Value: "ALUMNOS LMA PREPM", Label: "ALUMNOS LMA Preparatoria (mujeres)"},
}

// RoleLabel returns the display label of a category, or the value itself
// when the backend sent something outside the catalogue.
func RoleLabel(value string) string {
	for _, r := range Categories {
		if r.Value == value {
			return r.Label
		}
	}
	return value
}

// Normalize trims every field and uppercases the role.
func Normalize(r Registration) Registration {
	return Registration{
		FullName:  strings.TrimSpace(r.FullName),
		Plantel:   strings.TrimSpace(r.Plantel),
		ChildName: strings.TrimSpace(r.ChildName),
		Grado:     strings.TrimSpace(r.Grado),
		Role:      strings.ToUpper(strings.TrimSpace(r.Role)),
	}
}

var validate = validator.New()

// MissingFieldsError lists the json names of the fields that failed.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.Fields, ", "))
}

var jsonNames = map[string]string{
	"FullName":  "full_name",
	"Plantel":   "plantel",
	"ChildName": "child_name",
	"Grado":     "grado",
	"Role":      "role",
}

// Validate checks the already normalized registration.
func Validate(r Registration) error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate.Struct failed: %w", err)
	}

	missing := &MissingFieldsError{Fields: make([]string, 0, len(verrs))}
	for _, fe := range verrs {
		missing.Fields = append(missing.Fields, jsonNames[fe.StructField()])
	}
	return missing
}
