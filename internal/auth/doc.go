// ABOUTME: Package documentation for credential resolution

// Package auth resolves API keys to (user, agent) identities and
// carries the resolved identity through context. Credentials are read
// once at the edge; store operations only ever see an Identity.
package auth
