package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/sirupsen/logrus"
)

// RecipientSource lists candidate users of a client.
type RecipientSource interface {
	Recipients(ctx context.Context, clientID, projectID string) ([]model.Recipient, error)
}

// fanOut maps the actor role to the user types that hear about the activity.
// Admin activity reaches peer admins only; staff are never notified of it.
var fanOut = map[model.Role]map[model.Role]bool{
	model.RoleStaff:    {model.RoleAdmin: true},
	model.RoleAdmin:    {model.RoleAdmin: true},
	model.RoleCustomer: {model.RoleAdmin: true},
}

// RecipientResolver applies role-based fan-out and self-suppression.
type RecipientResolver struct {
	source RecipientSource
	log    logrus.FieldLogger
}

// NewRecipientResolver builds a RecipientResolver.
func NewRecipientResolver(source RecipientSource, log logrus.FieldLogger) *RecipientResolver {
	return &RecipientResolver{source: source, log: log.WithField("component", "recipients")}
}

// Resolve returns who should be notified about an activity in clientID.
// An empty result is not an error.
func (r *RecipientResolver) Resolve(ctx context.Context, clientID, projectID, actingUserID string, actingRole model.Role) ([]model.Recipient, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("resolve recipients: %w", model.ErrMissingClient)
	}
	targets, ok := fanOut[actingRole]
	if !ok {
		return nil, fmt.Errorf("resolve recipients: unknown actor role %q", actingRole)
	}

	candidates, err := r.source.Recipients(ctx, clientID, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	actor := strings.TrimSpace(actingUserID)
	seen := make(map[string]struct{}, len(candidates))
	out := make([]model.Recipient, 0, len(candidates))
	for _, c := range candidates {
		id := strings.TrimSpace(c.UserID)
		if id == "" || id == actor {
			continue
		}
		role, known := model.ParseRole(string(c.UserType))
		if !known || !targets[role] {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		c.UserID = id
		c.UserType = role
		out = append(out, c)
	}
	r.log.WithFields(logrus.Fields{
		"clientId":   clientID,
		"actorRole":  actingRole,
		"candidates": len(candidates),
		"recipients": len(out),
	}).Debug("recipients resolved")
	return out, nil
}
