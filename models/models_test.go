package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Matches(t *testing.T) {
	tests := []struct {
		name     string
		perm     *Permission
		resource string
		action   string
		want     bool
	}{
		{"exact match", &Permission{Resource: "research", Action: "query"}, "research", "query", true},
		{"action mismatch", &Permission{Resource: "research", Action: "query"}, "research", "upload", false},
		{"resource mismatch", &Permission{Resource: "research", Action: "query"}, "documents", "query", false},
		{"wildcard action", &Permission{Resource: "research", Action: "*"}, "research", "query", true},
		{"wildcard action any", &Permission{Resource: "research", Action: "*"}, "research", "anything", true},
		{"wildcard action wrong resource", &Permission{Resource: "research", Action: "*"}, "documents", "query", false},
		{"wildcard resource", &Permission{Resource: "*", Action: "query"}, "documents", "query", true},
		{"wildcard resource wrong action", &Permission{Resource: "*", Action: "query"}, "documents", "upload", false},
		{"full wildcard", &Permission{Resource: "*", Action: "*"}, "anything", "at-all", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.perm.Matches(tt.resource, tt.action))
		})
	}
}

func TestPermission_Name(t *testing.T) {
	p := &Permission{Resource: "research", Action: "query"}
	assert.Equal(t, "research:query", p.Name())
	assert.False(t, p.IsFullAccess())
	assert.True(t, (&Permission{Resource: "*", Action: "*"}).IsFullAccess())
}

func TestUser_RoleHelpers(t *testing.T) {
	u := NewUser("alice@example.com", "hash")
	u.Roles = []*Role{
		{Name: RoleMember},
		{Name: "premium"},
	}

	assert.True(t, u.HasRole(RoleMember))
	assert.True(t, u.HasRole("premium"))
	assert.False(t, u.HasRole(RoleAdmin))
	assert.Equal(t, []string{RoleMember, "premium"}, u.RoleNames())
}

func TestUser_FullName(t *testing.T) {
	u := NewUser("alice@example.com", "hash")
	assert.Equal(t, "alice@example.com", u.FullName())

	u.FirstName = "Alice"
	u.LastName = "Smith"
	assert.Equal(t, "Alice Smith", u.FullName())
}

func TestUser_Overrides(t *testing.T) {
	u := NewUser("bob@example.com", "hash")
	assert.False(t, u.HasOverrides())

	u.DailyQueryLimit = IntPtr(50)
	assert.True(t, u.HasOverrides())
	assert.Equal(t, 50, *u.OverrideLimits().DailyQueries)
	assert.Nil(t, u.OverrideLimits().MonthlyQueries)
}

func TestRefreshToken_Validity(t *testing.T) {
	now := time.Now().UTC()
	tok := &RefreshToken{ExpiresAt: now.Add(time.Hour)}

	assert.True(t, tok.IsValidAt(now))
	assert.False(t, tok.IsValidAt(now.Add(2*time.Hour)))

	revoked := now
	tok.RevokedAt = &revoked
	assert.True(t, tok.IsRevoked())
	assert.False(t, tok.IsValidAt(now))
}

func TestPasswordResetToken_Validity(t *testing.T) {
	now := time.Now().UTC()
	tok := &PasswordResetToken{ExpiresAt: now.Add(30 * time.Minute)}

	assert.True(t, tok.IsValidAt(now))
	assert.False(t, tok.IsValidAt(now.Add(time.Hour)))

	tok.IsUsed = true
	assert.False(t, tok.IsValidAt(now))
}

func TestIsUploadServiceType(t *testing.T) {
	assert.True(t, IsUploadServiceType(ServiceOCRTextFile))
	assert.True(t, IsUploadServiceType(ServiceDocumentProcess))
	assert.False(t, IsUploadServiceType(ServiceOCRText))
	assert.False(t, IsUploadServiceType(ServiceResearchQuery))
}

func TestQuotaLimits_Unlimited(t *testing.T) {
	assert.True(t, QuotaLimits{}.Unlimited())
	assert.False(t, QuotaLimits{DailyQueries: IntPtr(10)}.Unlimited())
}
