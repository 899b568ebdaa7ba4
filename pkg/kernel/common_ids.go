package kernel

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

// CredentialID identifies a tenant-owned provider credential.
type CredentialID string

func NewCredentialID(id string) CredentialID { return CredentialID(id) }
func (c CredentialID) String() string        { return string(c) }
func (c CredentialID) IsEmpty() bool         { return string(c) == "" }

// SessionID identifies a session record in the Session Registry.
type SessionID string

func NewSessionID(id string) SessionID { return SessionID(id) }
func (s SessionID) String() string     { return string(s) }
func (s SessionID) IsEmpty() bool      { return string(s) == "" }
