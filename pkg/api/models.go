package api

import "time"

type ParticipantRecord struct {
	ID        int64      `json:"id"`
	Clave     string     `json:"clave"`
	Plantel   string     `json:"plantel"`
	FullName  string     `json:"full_name"`
	ChildName string     `json:"child_name"`
	Grado     string     `json:"grado"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"created_at"`
}

type PlantelCount struct {
	Plantel string `json:"plantel"`
	Total   int    `json:"total"`
}

type RoleCount struct {
	Role  string `json:"role"`
	Total int    `json:"total"`
}

type Stats struct {
	Total     int            `json:"total"`
	ByPlantel []PlantelCount `json:"por_plantel"`
	ByRole    []RoleCount    `json:"por_role"`
}

// File is a downloaded body together with the name it should be saved under.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
