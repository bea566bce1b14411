package events

// Kind is the closed set of push event kinds understood by the client.
// KindUnknown is the fallback for kinds introduced by newer servers.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeploymentCreated
	KindDeploymentUpdated
	KindDeploymentDeleted
	KindProjectCreated
	KindProjectUpdated
	KindProjectDeleted
	KindComponentCreated
	KindComponentUpdated
	KindComponentDeleted
	KindLibraryUpdated
	KindSettingsUpdated
)

// Family groups kinds by the entity they describe.
type Family string

const (
	FamilyUnknown    Family = ""
	FamilyDeployment Family = "deployment"
	FamilyProject    Family = "project"
	FamilyComponent  Family = "component"
	FamilyLibrary    Family = "library"
	FamilySettings   Family = "settings"
)

// Action is the change a kind announces.
type Action string

const (
	ActionUnknown Action = ""
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

type kindInfo struct {
	name   string
	family Family
	action Action
}

var kinds = map[Kind]kindInfo{
	KindDeploymentCreated: {"deployment_created", FamilyDeployment, ActionCreated},
	KindDeploymentUpdated: {"deployment_updated", FamilyDeployment, ActionUpdated},
	KindDeploymentDeleted: {"deployment_deleted", FamilyDeployment, ActionDeleted},
	KindProjectCreated:    {"project_created", FamilyProject, ActionCreated},
	KindProjectUpdated:    {"project_updated", FamilyProject, ActionUpdated},
	KindProjectDeleted:    {"project_deleted", FamilyProject, ActionDeleted},
	KindComponentCreated:  {"component_created", FamilyComponent, ActionCreated},
	KindComponentUpdated:  {"component_updated", FamilyComponent, ActionUpdated},
	KindComponentDeleted:  {"component_deleted", FamilyComponent, ActionDeleted},
	KindLibraryUpdated:    {"library_updated", FamilyLibrary, ActionUpdated},
	KindSettingsUpdated:   {"settings_updated", FamilySettings, ActionUpdated},
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kinds))
	for kind, info := range kinds {
		out[info.name] = kind
	}
	return out
}()

// ParseKind maps a wire name to its Kind, returning KindUnknown for anything unrecognized.
func ParseKind(name string) Kind {
	if kind, ok := kindsByName[name]; ok {
		return kind
	}
	return KindUnknown
}

// String returns the wire name, or "unknown".
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "unknown"
}

func (k Kind) Family() Family {
	return kinds[k].family
}

func (k Kind) Action() Action {
	return kinds[k].action
}

// KindsOf lists the known kinds of one family in declaration order.
func KindsOf(family Family) []Kind {
	out := []Kind{}
	for kind := KindDeploymentCreated; kind <= KindSettingsUpdated; kind++ {
		if kinds[kind].family == family {
			out = append(out, kind)
		}
	}
	return out
}

// For returns the kind announcing action on family, or KindUnknown.
func For(family Family, action Action) Kind {
	for kind, info := range kinds {
		if info.family == family && info.action == action {
			return kind
		}
	}
	return KindUnknown
}
