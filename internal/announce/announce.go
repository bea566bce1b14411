// Package announce renders the deployment summary posted to the team chat.
package announce

import (
	"strings"
	"time"

	"github.com/chklst/deploysync/internal/model"
)

const timestampLayout = "2-Jan-2006 3:04PM"

const (
	pass = "✅ PASS"
	fail = "❌ FAIL"
)

// Summary is the text-ready view of one deployment. Empty optional fields are
// left out of the message.
type Summary struct {
	PatchID        string
	Project        string
	Component      string
	Environment    string
	ComponentURL   string
	BuildServer    string
	BuildStatus    string
	VCSURL         string
	DeployServer   string
	BuildBackup    string
	DatabaseName   string
	DeployStatus   string
	DatabaseScript string
	Developer      string
	DeployedBy     string
	Timestamp      time.Time
	Notes          string
}

// FromDeployment builds a summary, taking names from the attached project
// and component when present.
func FromDeployment(d model.Deployment) Summary {
	s := Summary{
		PatchID:        d.JiraID,
		Environment:    d.Environment,
		BuildServer:    d.BuildServer,
		BuildStatus:    d.BuildStatus,
		VCSURL:         d.VCSURL,
		DeployServer:   d.DeployServer,
		BuildBackup:    d.PreviousBuildBackup,
		DatabaseName:   d.DatabaseName,
		DeployStatus:   d.DeployStatus,
		DatabaseScript: d.DatabaseScript,
		Developer:      d.DeveloperName,
		DeployedBy:     d.DeployedBy,
		Timestamp:      d.Timestamp,
		Notes:          d.Notes,
	}
	if d.Project != nil {
		s.Project = d.Project.Name
	}
	if d.Component != nil {
		s.Component = d.Component.Name
		s.ComponentURL = d.Component.ComponentURL
	}
	return s
}

// FormatForTeams renders s as the multi-line chat message.
func FormatForTeams(s Summary) string {
	patch := s.PatchID
	if patch == "" {
		patch = "N/A"
	}

	var b strings.Builder
	line := func(parts ...string) {
		for _, p := range parts {
			b.WriteString(p)
		}
		b.WriteByte('\n')
	}
	optional := func(label, value string) {
		if value != "" {
			line("• ", label, ": ", value)
		}
	}

	line("🎫 PATCH: ", patch, " | ", s.Project, " - Deployment Complete")
	line()
	line("• Project: ", s.Project, " - ", s.Component)
	optional("Environment", s.Environment)
	optional("URL", s.ComponentURL)
	optional("Build Server", s.BuildServer)
	line("• Build: ", verdict(s.BuildStatus))
	optional("Git URL", s.VCSURL)
	optional("Deploy Server", s.DeployServer)
	optional("Build Backup", s.BuildBackup)
	optional("Database", s.DatabaseName)
	optional("DB Script", s.DatabaseScript)
	line("• Deployment: ", verdict(s.DeployStatus))
	optional("Developer", s.Developer)
	line("• Deployed By: ", s.DeployedBy)
	line("• Timestamp: ", FormatTimestamp(s.Timestamp))
	optional("Notes", s.Notes)

	return strings.TrimSuffix(b.String(), "\n")
}

// FormatTimestamp renders t like "30-Nov-2025 4:47PM" in t's own location.
// The zero time renders as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timestampLayout)
}

func verdict(status string) string {
	if status == model.StatusSuccess {
		return pass
	}
	return fail
}
