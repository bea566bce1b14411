package store

import (
	"context"
	"net/http"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/model"
)

// Settings caches the application settings, starting from the server defaults.
type Settings struct {
	*Document[model.AppSettings]
}

// SettingsPatch lists the fields to change; nil fields keep their value.
type SettingsPatch struct {
	DefaultDeployedBy  *string
	ExcelExportPath    *string
	AutoClearAfterSave *bool
}

func (p SettingsPatch) apply(s model.AppSettings) model.AppSettings {
	if p.DefaultDeployedBy != nil {
		s.DefaultDeployedBy = *p.DefaultDeployedBy
	}
	if p.ExcelExportPath != nil {
		s.ExcelExportPath = *p.ExcelExportPath
	}
	if p.AutoClearAfterSave != nil {
		s.AutoClearAfterSave = *p.AutoClearAfterSave
	}
	return s
}

func NewSettings(req Requester, opts Options) *Settings {
	d := newDocument(Resource{
		Name:     "settings",
		Plural:   "settings",
		Singular: "settings",
		Path:     "/settings",
		Family:   events.FamilySettings,
	}, model.DefaultSettings(), http.MethodPost, req, opts)
	return &Settings{Document: d}
}

// Update merges patch into the cached settings and posts the full result.
func (s *Settings) Update(ctx context.Context, patch SettingsPatch) (model.AppSettings, error) {
	return s.Save(ctx, patch.apply(s.Value()))
}

// SetDefaultDeployedBy changes the cached value only; Update persists it.
func (s *Settings) SetDefaultDeployedBy(name string) {
	s.set(func(v *model.AppSettings) { v.DefaultDeployedBy = name })
}

func (s *Settings) SetExcelExportPath(path string) {
	s.set(func(v *model.AppSettings) { v.ExcelExportPath = path })
}
