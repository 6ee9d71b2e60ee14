// Package token issues and verifies signed, expiring bearer tokens.
//
// Tokens are compact JWS strings (header.payload.signature, base64url
// without padding) signed with HMAC-SHA256 over a process-wide secret. The
// signature over header.payload, exactly as received, is checked before any
// claim is decoded or trusted. Revocation markers live in a cache.Cache
// keyed by token id and expire together with the token they revoke.
package token
