package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/sanitize"
)

var titleTemplates = map[model.ActivityType]string{
	model.ActivityMaterialImported:    "Materials Imported by %s",
	model.ActivityMaterialUsed:        "Materials Used by %s",
	model.ActivityMaterialTransferred: "Materials Transferred by %s",
	model.ActivityLaborAdded:          "Labor Added by %s",
	model.ActivityProjectCreated:      "Project Created by %s",
	model.ActivityProjectUpdated:      "Project Updated by %s",
	model.ActivityProjectDeleted:      "Project Deleted by %s",
	model.ActivitySectionCreated:      "Section Created by %s",
	model.ActivitySectionUpdated:      "Section Updated by %s",
	model.ActivitySectionDeleted:      "Section Deleted by %s",
	model.ActivityMiniSectionCreated:  "Mini-Section Created by %s",
	model.ActivityMiniSectionUpdated:  "Mini-Section Updated by %s",
	model.ActivityMiniSectionDeleted:  "Mini-Section Deleted by %s",
	model.ActivityStaffAdded:          "Staff Added by %s",
	model.ActivityStaffUpdated:        "Staff Updated by %s",
	model.ActivityStaffRemoved:        "Staff Removed by %s",
	model.ActivityAdminUpdate:         "Admin Update by %s",
}

const genericTitle = "Activity Update by %s"

// Title renders the notification title. Unmapped types get the generic title.
func Title(activity model.ActivityType, actorName string) string {
	tpl, ok := titleTemplates[activity]
	if !ok {
		tpl = genericTitle
	}
	return fmt.Sprintf(tpl, displayName(actorName))
}

// Body prefers the event message, then details, then a generated sentence.
func Body(event model.ActivityEvent) string {
	if msg := strings.TrimSpace(event.Message); msg != "" {
		return msg
	}
	if details := strings.TrimSpace(event.Details); details != "" {
		return details
	}
	action := strings.ReplaceAll(string(event.ActivityType), "_", " ")
	if action == "" {
		action = "an update"
	}
	body := fmt.Sprintf("%s recorded %s", displayName(event.Actor.FullName), action)
	if event.ProjectID != "" {
		body += " in project " + event.ProjectID
	}
	return body
}

// Route is the in-app navigation target for an event.
func Route(event model.ActivityEvent) string {
	if event.ProjectID == "" {
		return "/activity"
	}
	route := "/projects/" + url.PathEscape(event.ProjectID)
	if event.SectionID != "" {
		route += "/sections/" + url.PathEscape(event.SectionID)
		if event.MiniSectionID != "" {
			route += "/mini-sections/" + url.PathEscape(event.MiniSectionID)
		}
	}
	if !sanitize.SanitizeForNavigation(route) {
		return "/activity"
	}
	return route
}

// payloadData is the structured data sent along with the notification.
func payloadData(event model.ActivityEvent, title, body string) map[string]string {
	data := map[string]string{
		"type":         string(event.ActivityType),
		"activityType": string(event.ActivityType),
		"clientId":     event.ClientID,
		"url":          Route(event),
		"title":        title,
		"message":      body,
	}
	if event.ProjectID != "" {
		data["projectId"] = event.ProjectID
		data["id"] = event.ProjectID
	}
	if event.SectionID != "" {
		data["sectionId"] = event.SectionID
		data["id"] = event.SectionID
	}
	if event.MiniSectionID != "" {
		data["miniSectionId"] = event.MiniSectionID
		data["id"] = event.MiniSectionID
	}
	return sanitize.StripMap(data)
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "a team member"
	}
	return name
}
