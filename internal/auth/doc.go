// Package auth verifies the bearer tokens presented to the HTTP API and
// turns them into a Caller.
//
// Accounts live in a separate service that signs HS256 JWTs with a secret
// shared with this process. Tokens carry the username as subject and a
// role: "user" or "admin". Admins may operate any lamp; users only lamps
// they own or that are unowned.
package auth
