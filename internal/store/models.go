package store

import "time"

// Subject is an end-user principal.
type Subject struct {
	Sub                  string    `db:"sub"`
	Email                string    `db:"email"`
	DisplayName          string    `db:"display_name"`
	PasswordResetRequired bool     `db:"password_reset_required"`
	CreatedAt             time.Time `db:"created_at"`
}

// AdminPrincipal is an administrative principal.
type AdminPrincipal struct {
	ID                    string    `db:"id"`
	Email                 string    `db:"email"`
	DisplayName           string    `db:"display_name"`
	Role                  string    `db:"role"` // "read" | "write"
	PasswordResetRequired bool      `db:"password_reset_required"`
	CreatedAt             time.Time `db:"created_at"`
}

// Credential is the aPAKE envelope and bookkeeping persisted per principal.
// One row per (PrincipalID, Cohort).
type Credential struct {
	PrincipalID    string    `db:"principal_id"`
	Cohort         string    `db:"cohort"` // "user" | "admin"
	Envelope       []byte    `db:"envelope"`
	ServerPubKey   []byte    `db:"server_pub_key"`
	ExportKeyHash  []byte    `db:"export_key_hash"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// AuthRequest is a pending OIDC authorization request.
type AuthRequest struct {
	ID                  string    `db:"id"`
	ClientID            string    `db:"client_id"`
	RedirectURI         string    `db:"redirect_uri"`
	ResponseType        string    `db:"response_type"`
	Scope               string    `db:"scope"`
	State               string    `db:"state"`
	Nonce               string    `db:"nonce"`
	CodeChallenge       string    `db:"code_challenge"`
	CodeChallengeMethod string    `db:"code_challenge_method"`
	ZkPubKey            *string   `db:"zk_pub_key"`
	RequestOrigin       string    `db:"request_origin"`
	CreatedAt           time.Time `db:"created_at"`
	ExpiresAt           time.Time `db:"expires_at"`
	Status              string    `db:"status"` // pending | finalized | consumed
}

// AuthorizationCode is a single-use OIDC code.
type AuthorizationCode struct {
	Code            string     `db:"code"`
	AuthRequestID   string     `db:"auth_request_id"`
	Subject         string     `db:"subject"`
	ClientID        string     `db:"client_id"`
	RedirectURI     string     `db:"redirect_uri"`
	Scope           string     `db:"scope"`
	Nonce           string     `db:"nonce"`
	CodeChallenge   string     `db:"code_challenge"`
	WrappedDrk      []byte     `db:"wrapped_drk"`
	ZkClientPubKey  *string    `db:"zk_client_pub_key"`
	OrgID           *string    `db:"org_id"`
	IssuedAt        time.Time  `db:"issued_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	ConsumedAt      *time.Time `db:"consumed_at"`
}

// Session is an opaque server-side session.
type Session struct {
	SessionID         string     `db:"session_id"`
	Cohort            string     `db:"cohort"` // user | admin
	SubjectOrAdminID  string     `db:"subject_or_admin_id"`
	ClientID          *string    `db:"client_id"`
	CreatedAt         time.Time  `db:"created_at"`
	LastSeenAt        time.Time  `db:"last_seen_at"`
	IdleTimeoutAt     time.Time  `db:"idle_timeout_at"`
	AbsoluteExpiresAt time.Time  `db:"absolute_expires_at"`
	CSRFToken         string     `db:"csrf_token"`
	OtpVerified       bool       `db:"otp_verified"`
	OrgID             *string    `db:"org_id"`
	RefreshTokenHash  []byte     `db:"refresh_token_hash"`
	RotationChainID   *string    `db:"rotation_chain_id"`
	RevokedAt         *time.Time `db:"revoked_at"`
}

// TotpRecord is the per-principal TOTP state.
type TotpRecord struct {
	PrincipalID     string     `db:"principal_id"`
	Cohort          string     `db:"cohort"`
	WrappedSecret   []byte     `db:"wrapped_secret"`
	Status          string     `db:"status"` // absent | pending | enabled
	CreatedAt       time.Time  `db:"created_at"`
	LastUsedAt      *time.Time `db:"last_used_at"`
	FailureCount    int        `db:"failure_count"`
	LockedUntil     *time.Time `db:"locked_until"`
	BackupCodeHashes [][]byte  `db:"-"` // loaded via a join table, see totp.go
}

// SigningKeyRow is the persisted form of a SigningKey.
type SigningKeyRow struct {
	KID               string     `db:"kid"`
	Algorithm         string     `db:"algorithm"`
	WrappedPrivateKey []byte     `db:"wrapped_private_key"`
	PublicKey         []byte     `db:"public_key"`
	CreatedAt         time.Time  `db:"created_at"`
	RotatedAt         *time.Time `db:"rotated_at"`
	PurgedAt          *time.Time `db:"purged_at"`
}

// Organization / Membership / Role / Permission.
type Organization struct {
	ID        string    `db:"id"`
	Slug      string    `db:"slug"`
	Name      string    `db:"name"`
	RequireOtp bool     `db:"require_otp"`
	CreatedAt time.Time `db:"created_at"`
}

type Membership struct {
	ID       string `db:"id"`
	Subject  string `db:"subject"`
	OrgID    string `db:"org_id"`
	RoleID   string `db:"role_id"`
	Status   string `db:"status"` // active | inactive
}

type Role struct {
	ID    string `db:"id"`
	OrgID string `db:"org_id"`
	Name  string `db:"name"`
}

type Permission struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type RolePermission struct {
	RoleID       string `db:"role_id"`
	PermissionID string `db:"permission_id"`
}

// AuditLog is one append-only event.
type AuditLog struct {
	ID                   string    `db:"id"`
	EventType            string    `db:"event_type"`
	Method               string    `db:"method"`
	Path                 string    `db:"path"`
	Cohort               string    `db:"cohort"`
	SubjectID            *string   `db:"subject_id"`
	AdminID              *string   `db:"admin_id"`
	ClientID             *string   `db:"client_id"`
	IPAddress            string    `db:"ip_address"`
	UserAgent            string    `db:"user_agent"`
	Success              bool      `db:"success"`
	StatusCode           int       `db:"status_code"`
	ErrorCode            *string   `db:"error_code"`
	ResourceType         *string   `db:"resource_type"`
	ResourceID           *string   `db:"resource_id"`
	Action               string    `db:"action"`
	RequestBodyRedacted  []byte    `db:"request_body_redacted"`
	ResponseTimeMs       int64     `db:"response_time_ms"`
	Timestamp            time.Time `db:"timestamp"`
}

// Setting is a typed, validated settings row.
type Setting struct {
	Key    string `db:"key"`
	Value  []byte `db:"value"` // jsonb
	Secure bool   `db:"secure"`
}

// KekParamsRow persists the Argon2id parameters.
type KekParamsRow struct {
	Salt      []byte `db:"salt"`
	TimeCost  uint32 `db:"time_cost"`
	MemoryKiB uint32 `db:"memory_kib"`
	Threads   uint8  `db:"threads"`
}

// OprfSeedRow persists the wrapped OPRF seed.
type OprfSeedRow struct {
	Wrapped []byte `db:"wrapped"`
}

// AkeServerKeyRow persists the aPAKE engine's global static P-256 keypair
//. Wrapped once at install, never rotated.
type AkeServerKeyRow struct {
	WrappedPrivateKey []byte `db:"wrapped_private_key"`
	PublicKey         []byte `db:"public_key"`
}

// InstallToken is the single-use bootstrap token.
type InstallToken struct {
	TokenHash []byte     `db:"token_hash"`
	ConsumedAt *time.Time `db:"consumed_at"`
	CreatedAt  time.Time  `db:"created_at"`
}
