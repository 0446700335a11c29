// Package auth provides request authentication and identity
// administration for cumulus-auth.
//
// # Authentication
//
// Callers present an access string "accessKey:projectID", a signature,
// and the canonical pieces of the request (verb, host, path, and query
// parameters or headers). The service resolves the user by access key,
// resolves the project (defaulting to the user's own account project),
// enforces membership, and recomputes the expected signature from the
// user's secret key:
//
//	user, project, err := svc.Authenticate(ctx, "AK:proj", sig, params,
//	    "GET", "api.example.com:8773", "/services/Cloud", auth.CheckTypeEC2, nil)
//
// Unknown users, unknown projects, and membership denials all surface
// as ErrNotFound so a caller cannot distinguish them; signature
// mismatches surface as ErrAuthenticationFailed.
//
// # Administration
//
// The service also owns the administrative lifecycle: user and project
// CRUD, membership, key pairs, and the per-project VPN port lease that
// is allocated at project creation and reclaimed at deletion. Role
// grants are managed through the embedded policy engine (Policy()).
//
// # Concurrency
//
// The service holds no per-request state; a single instance serves
// concurrent callers. Port-lease mutations are single atomic pool
// operations, so an abandoned request cannot leave the pool
// inconsistent.
package auth
