// Package iam (Identity and Access Management) provides the authentication,
// authorization, and tenant-scoped secret-custody core behind the gateway.
//
// # Overview
//
// The iam package is organized into sub-packages that each own one concern:
//
//   - iam/token      — JWT minting/verification, jti blacklist, refresh rotation
//   - iam/session    — live-session registry, concurrency caps, hijack detection
//   - iam/ratelimit  — sliding-window admission over global/ip/user/endpoint scopes
//   - iam/authsvc    — the login/refresh/logout orchestrator composing the above
//   - iam/userdir    — client contract for the external user directory service
//   - iam/secret     — encrypted-at-rest provider credentials with tenant scoping
//   - iam/credential — strategy-driven credential selection and provider probing
//   - iam/policy     — password strength, IP allow/deny, auto-ban on login bursts
//   - iam/scopes     — permission-scope vocabulary for roles and route gates
//
// # Architecture
//
// Each sub-domain follows the same layering:
//
//	HTTP Handler  →  Service Layer  →  Repository/Port Interface  →  Infrastructure (Postgres/Redis)
//
// and exposes its own error registry (e.g. "TOKEN", "SESSION", "RATE_LIMIT"),
// domain entities with rich methods, DTOs for API responses, and narrow
// collaborator interfaces so packages compose without hard dependency edges.
//
// # Multi-Tenancy
//
// Every user, session, and provider credential belongs to exactly one tenant.
// Tenant scope is presented explicitly on every data access — a read without
// a tenant id is rejected as a programming error, and a credential owned by
// another tenant is indistinguishable from one that does not exist.
//
// # Tokens & Sessions
//
// Login produces a short-lived access token and a longer-lived refresh token
// bound to a server-side session record. Refresh is single-use: rotating a
// refresh token revokes it atomically, so of two concurrent rotations at
// most one succeeds. Terminating a session revokes both of its bound jtis.
//
// # Scopes & Authorization
//
// Authorization is scope-based. Scopes follow the pattern "resource:action"
// (e.g. "credentials:read", "sessions:terminate"). The wildcard "*" grants
// full access, and "resource:*" grants every action on one resource. The
// iam/scopes package is the single vocabulary; kernel.Role and route gates
// both draw from it.
//
// This package itself carries only the shared IAM error registry consumed
// at the gateway edge; all behavior lives in the sub-packages above.
package iam
