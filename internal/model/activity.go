package model

// ActivityType is the closed set of events that trigger notifications.
type ActivityType string

const (
	ActivityMaterialImported    ActivityType = "material_imported"
	ActivityMaterialUsed        ActivityType = "material_used"
	ActivityMaterialTransferred ActivityType = "material_transferred"
	ActivityLaborAdded          ActivityType = "labor_added"
	ActivityProjectCreated      ActivityType = "project_created"
	ActivityProjectUpdated      ActivityType = "project_updated"
	ActivityProjectDeleted      ActivityType = "project_deleted"
	ActivitySectionCreated      ActivityType = "section_created"
	ActivitySectionUpdated      ActivityType = "section_updated"
	ActivitySectionDeleted      ActivityType = "section_deleted"
	ActivityMiniSectionCreated  ActivityType = "mini_section_created"
	ActivityMiniSectionUpdated  ActivityType = "mini_section_updated"
	ActivityMiniSectionDeleted  ActivityType = "mini_section_deleted"
	ActivityStaffAdded          ActivityType = "staff_added"
	ActivityStaffUpdated        ActivityType = "staff_updated"
	ActivityStaffRemoved        ActivityType = "staff_removed"
	ActivityAdminUpdate         ActivityType = "admin_update"
)

// ActivityTypes lists every known activity type.
var ActivityTypes = []ActivityType{
	ActivityMaterialImported, ActivityMaterialUsed, ActivityMaterialTransferred, ActivityLaborAdded,
	ActivityProjectCreated, ActivityProjectUpdated, ActivityProjectDeleted,
	ActivitySectionCreated, ActivitySectionUpdated, ActivitySectionDeleted,
	ActivityMiniSectionCreated, ActivityMiniSectionUpdated, ActivityMiniSectionDeleted,
	ActivityStaffAdded, ActivityStaffUpdated, ActivityStaffRemoved,
	ActivityAdminUpdate,
}

// Known reports whether t is part of the closed enum.
func (t ActivityType) Known() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Actor is the user who performed an activity.
type Actor struct {
	UserID   string `json:"userId" validate:"required"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role" validate:"required,oneof=admin staff customer"`
}

// ActivityEvent is produced by the host app after an activity was persisted server-side.
type ActivityEvent struct {
	ActivityType  ActivityType `json:"activityType" validate:"required"`
	ClientID      string       `json:"clientId" validate:"required"`
	ProjectID     string       `json:"projectId,omitempty"`
	SectionID     string       `json:"sectionId,omitempty"`
	MiniSectionID string       `json:"miniSectionId,omitempty"`
	Actor         Actor        `json:"actor"`
	Details       string       `json:"details,omitempty"`
	Message       string       `json:"message,omitempty"`
}
