// Package password hashes and verifies user credentials with bcrypt.
//
// Hashes embed their algorithm version, cost and salt, so the configured
// cost can be raised later without invalidating stored credentials; use
// NeedsRehash to find hashes produced at an older cost.
package password
