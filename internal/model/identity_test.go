package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity(t *testing.T) {
	yes := true
	tests := []struct {
		name    string
		raw     RawUser
		role    Role
		clients []string
		wantErr error
	}{
		{
			name:    "explicit role wins over userType",
			raw:     RawUser{ID: "u1", Role: "admin", UserType: "staff", ClientID: "C1"},
			role:    RoleAdmin,
			clients: []string{"C1"},
		},
		{
			name:    "userType used when role missing",
			raw:     RawUser{UserID: "u2", UserType: "Staff", ClientIDs: []string{"C1", "C2", "C1"}},
			role:    RoleStaff,
			clients: []string{"C1", "C2"},
		},
		{
			name:    "isAdmin flag",
			raw:     RawUser{MongoID: "u3", IsAdmin: &yes, ClientIDs: []string{"C9"}},
			role:    RoleAdmin,
			clients: []string{"C9"},
		},
		{
			name:    "client list implies staff",
			raw:     RawUser{ID: "u4", ClientIDs: []string{"C1"}},
			role:    RoleStaff,
			clients: []string{"C1"},
		},
		{
			name:    "customer",
			raw:     RawUser{ID: "u5", Role: "client", ClientID: "C3"},
			role:    RoleCustomer,
			clients: []string{"C3"},
		},
		{
			name:    "missing id",
			raw:     RawUser{Role: "admin", ClientID: "C1"},
			wantErr: ErrMissingUserID,
		},
		{
			name:    "unknown role",
			raw:     RawUser{ID: "u6", ClientID: "C1"},
			wantErr: ErrUnknownRole,
		},
		{
			name:    "admin without client",
			raw:     RawUser{ID: "u7", Role: "admin"},
			wantErr: ErrMissingClient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ResolveIdentity(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, id.Role())
			assert.Equal(t, tt.clients, id.ClientIDs())
		})
	}
}

func TestResolveIdentity_NameFallsBackToEmail(t *testing.T) {
	id, err := ResolveIdentity(RawUser{ID: "u1", Email: "a@example.com", Role: "admin", ClientID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", id.FullName())
	assert.Equal(t, "u1", id.UserID())
}

func TestActivityTypeKnown(t *testing.T) {
	assert.True(t, ActivityMaterialImported.Known())
	assert.True(t, ActivityAdminUpdate.Known())
	assert.False(t, ActivityType("weather_changed").Known())
}
