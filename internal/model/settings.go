package model

import "time"

// AppSettings is the singleton application settings document.
type AppSettings struct {
	ID                 int64     `json:"id,omitempty"`
	DefaultDeployedBy  string    `json:"default_deployed_by"`
	ExcelExportPath    string    `json:"excel_export_path"`
	AutoClearAfterSave bool      `json:"auto_clear_after_save"`
	CreatedAt          time.Time `json:"created_at,omitzero"`
	UpdatedAt          time.Time `json:"updated_at,omitzero"`
}

func (s AppSettings) Identity() (int64, bool) { return identity(s.ID) }

// DefaultSettings mirrors the values the server seeds on first use.
func DefaultSettings() AppSettings {
	return AppSettings{
		DefaultDeployedBy: "Kannan",
		ExcelExportPath:   "/reports",
	}
}
