// Package scopes defines the permission-scope vocabulary for the gateway
// platform: the strings that populate kernel.Role.Permissions and
// kernel.Principal.Permissions, and that gateway routes check via
// RequestContext.HasPermission.
package scopes

// ============================================================================
// DOMAIN-SPECIFIC SCOPES - Gateway / IAM platform
// ============================================================================

const (
	CredentialsRead   = "credentials:read"
	CredentialsWrite  = "credentials:write"
	CredentialsTest   = "credentials:test"
	CredentialsDelete = "credentials:delete"

	SessionsRead      = "sessions:read"
	SessionsTerminate = "sessions:terminate"

	UsersRead  = "users:read"
	UsersWrite = "users:write"

	PolicyRead  = "policy:read"
	PolicyWrite = "policy:write"

	GatewayAdmin = "admin:*"
	GatewayAll   = "*"
)

// DomainScopeCategories organizes domain-specific scopes by the component
// that enforces them.
var DomainScopeCategories = map[string][]string{
	"secret_store":    {CredentialsRead, CredentialsWrite, CredentialsDelete},
	"credential_test": {CredentialsTest},
	"session_registry": {
		SessionsRead, SessionsTerminate,
	},
	"user_directory": {UsersRead, UsersWrite},
	"policy_engine":  {PolicyRead, PolicyWrite},
}

// DomainScopeDescriptions provides human-readable descriptions for domain scopes.
var DomainScopeDescriptions = map[string]string{
	CredentialsRead:   "View tenant provider credentials (metadata only)",
	CredentialsWrite:  "Create or update tenant provider credentials",
	CredentialsTest:   "Run the provider credential test probe",
	CredentialsDelete: "Delete tenant provider credentials",
	SessionsRead:      "List and inspect sessions",
	SessionsTerminate: "Terminate sessions belonging to the tenant",
	UsersRead:         "View user profiles within the tenant",
	UsersWrite:        "Create, update, or deactivate users",
	PolicyRead:        "View the tenant security policy document",
	PolicyWrite:       "Update the tenant security policy document",
}

// DomainScopeGroups defines domain-specific role groupings. Nothing in this
// module reads it; the built-in kernel.Role values carry their own
// permission lists.
var DomainScopeGroups = map[string][]string{
	"owner":  {GatewayAll},
	"admin":  {GatewayAdmin, CredentialsRead, CredentialsWrite, CredentialsTest, CredentialsDelete, SessionsRead, SessionsTerminate, UsersRead, UsersWrite, PolicyRead, PolicyWrite},
	"member": {CredentialsRead, CredentialsTest, SessionsRead},
	"viewer": {CredentialsRead},
}
