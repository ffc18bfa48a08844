package model

import (
	"errors"
	"strings"
)

// Role classifies a user for recipient fan-out and push token tagging.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// ParseRole normalises the role spellings the backend has used over time.
func ParseRole(value string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "admin", "administrator", "owner":
		return RoleAdmin, true
	case "staff", "employee", "worker":
		return RoleStaff, true
	case "customer", "client", "user":
		return RoleCustomer, true
	}
	return "", false
}

// UserIdentity is resolved once at the session boundary. Downstream code
// switches on Role() and never re-infers it from raw fields.
type UserIdentity interface {
	UserID() string
	Email() string
	FullName() string
	Role() Role
	// ClientIDs returns the client scopes of the user. Admins and customers have exactly one.
	ClientIDs() []string

	identity()
}

type principal struct {
	ID   string `json:"userId"`
	Mail string `json:"email"`
	Name string `json:"fullName"`
}

func (p principal) UserID() string   { return p.ID }
func (p principal) Email() string    { return p.Mail }
func (p principal) FullName() string { return p.Name }

// AdminIdentity is an administrator of a single client.
type AdminIdentity struct {
	principal
	ClientID string `json:"clientId"`
}

func (AdminIdentity) Role() Role            { return RoleAdmin }
func (a AdminIdentity) ClientIDs() []string { return []string{a.ClientID} }
func (AdminIdentity) identity()             {}

// StaffIdentity may be associated with several clients.
type StaffIdentity struct {
	principal
	Clients []string `json:"clientIds"`
}

func (StaffIdentity) Role() Role { return RoleStaff }
func (s StaffIdentity) ClientIDs() []string {
	out := make([]string, len(s.Clients))
	copy(out, s.Clients)
	return out
}
func (StaffIdentity) identity() {}

// CustomerIdentity belongs to exactly one client.
type CustomerIdentity struct {
	principal
	ClientID string `json:"clientId"`
}

func (CustomerIdentity) Role() Role            { return RoleCustomer }
func (c CustomerIdentity) ClientIDs() []string { return []string{c.ClientID} }
func (CustomerIdentity) identity()             {}

// RawUser is the loosely shaped user record handed over by the auth layer.
type RawUser struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	MongoID   string   `json:"_id"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	UserType  string   `json:"userType"`
	IsAdmin   *bool    `json:"isAdmin"`
	ClientID  string   `json:"clientId"`
	ClientIDs []string `json:"clientIds"`
}

var (
	ErrMissingUserID = errors.New("user id is required")
	ErrUnknownRole   = errors.New("cannot determine user role")
	ErrMissingClient = errors.New("client scope is required")
)

// ResolveIdentity turns a raw user record into its tagged variant.
// Precedence: role, userType, isAdmin, then presence of clientIds (staff).
func ResolveIdentity(raw RawUser) (UserIdentity, error) {
	p := principal{
		ID:   firstNonEmpty(raw.UserID, raw.ID, raw.MongoID),
		Mail: strings.TrimSpace(raw.Email),
		Name: firstNonEmpty(raw.FullName, raw.Name),
	}
	if p.ID == "" {
		return nil, ErrMissingUserID
	}
	if p.Name == "" {
		p.Name = p.Mail
	}

	role, ok := ParseRole(raw.Role)
	if !ok {
		role, ok = ParseRole(raw.UserType)
	}
	if !ok && raw.IsAdmin != nil && *raw.IsAdmin {
		role, ok = RoleAdmin, true
	}
	if !ok && len(raw.ClientIDs) > 0 {
		role, ok = RoleStaff, true
	}
	if !ok {
		return nil, ErrUnknownRole
	}

	switch role {
	case RoleStaff:
		clients := compactIDs(append([]string{raw.ClientID}, raw.ClientIDs...))
		if len(clients) == 0 {
			return nil, ErrMissingClient
		}
		return StaffIdentity{principal: p, Clients: clients}, nil
	case RoleAdmin:
		clientID := firstNonEmpty(raw.ClientID, firstOf(raw.ClientIDs))
		if clientID == "" {
			return nil, ErrMissingClient
		}
		return AdminIdentity{principal: p, ClientID: clientID}, nil
	default:
		clientID := firstNonEmpty(raw.ClientID, firstOf(raw.ClientIDs))
		if clientID == "" {
			return nil, ErrMissingClient
		}
		return CustomerIdentity{principal: p, ClientID: clientID}, nil
	}
}

// NewAdmin, NewStaff and NewCustomer build identities directly, mostly for tests and tooling.
func NewAdmin(userID, email, fullName, clientID string) AdminIdentity {
	return AdminIdentity{principal: principal{ID: userID, Mail: email, Name: fullName}, ClientID: clientID}
}

func NewStaff(userID, email, fullName string, clientIDs ...string) StaffIdentity {
	return StaffIdentity{principal: principal{ID: userID, Mail: email, Name: fullName}, Clients: compactIDs(clientIDs)}
}

func NewCustomer(userID, email, fullName, clientID string) CustomerIdentity {
	return CustomerIdentity{principal: principal{ID: userID, Mail: email, Name: fullName}, ClientID: clientID}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
