// Package auth provides authentication for tool-gateway.
//
// # Providers
//
// A Provider authenticates credentials and validates or refreshes tokens.
// Two implementations exist:
//
//   - MemoryProvider: opaque tokens recorded in a server-side table. Tokens
//     expire lazily on access; a Reaper can sweep them in the background.
//     Tokens can be revoked (logout).
//
//   - SignedTokenProvider: stateless HS256 tokens of the form
//     base64url(header).base64url(payload).base64url(signature). The payload
//     carries sub, roles, permissions and exp. Roles and permissions come
//     from the token, so changes to a user take effect only once a new token
//     is issued.
//
// Both keep their own user table and compare passwords in plain text.
//
// # Manager
//
// The Manager registers providers by id:
//
//	m := auth.NewManager(logger)
//	m.RegisterProvider("memory", memProvider)
//	m.RegisterProvider("jwt", signedProvider)
//
//	res := m.Authenticate(ctx, "jwt", auth.Credentials{"username": "admin", "password": "..."})
//	res = m.ValidateToken(ctx, res.Token)
//
// ValidateToken routes "<id>:<token>" directly to provider id. Other tokens
// are tried against every provider in registration order.
//
// # HTTP
//
// HTTPAuthMiddleware extracts the bearer token, validates it and stores the
// resulting Principal in the request context (see FromContext).
package auth
