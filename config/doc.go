// Package config loads the gatekeep daemon configuration from YAML.
//
// Values are expanded with secret.ExpandEnvStrict, and the token signing
// secret may be a secret reference:
//
//	token:
//	  secret: secretref:env:GATEKEEP_SIGNING_SECRET
//
// A loaded Config is treated as immutable. The resolved signing secret is
// held as bytes; call Wipe once the token service has copied it.
package config
