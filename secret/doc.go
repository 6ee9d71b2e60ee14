// Package secret resolves configuration values that hold secrets.
//
// Values may contain ${VAR} references, expanded strictly (see
// ExpandEnvStrict), and secret references of the form
//
//	secretref:<provider>:<ref>
//
// which are resolved through a Provider. Two providers ship with the
// package: "env" reads an environment variable and "file" reads a file,
// such as a mounted Kubernetes or Docker secret:
//
//	secretref:env:GATEKEEP_SIGNING_SECRET
//	secretref:file:/run/secrets/signing_secret
//
// Resolved values are never logged. Callers that hold secrets in byte
// slices should Wipe them when done.
package secret
