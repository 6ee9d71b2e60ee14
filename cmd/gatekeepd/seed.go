package main

import (
	"fmt"
	"strings"

	"github.com/jonwraymond/gatekeep/auth"
	"github.com/jonwraymond/gatekeep/password"
	"github.com/jonwraymond/gatekeep/token"
)

// seedUser is a --seed-user value: id:password:role. The id doubles as the
// login identifier. The password may contain colons but not be empty.
type seedUser struct {
	id       string
	password string
	role     token.Role
}

func parseSeedUser(s string) (seedUser, error) {
	id, rest, ok := strings.Cut(s, ":")
	i := strings.LastIndexByte(rest, ':')
	if !ok || id == "" || i <= 0 {
		return seedUser{}, fmt.Errorf("seed user %q: want id:password:role", redactSeed(s))
	}

	role, err := token.ParseRole(rest[i+1:])
	if err != nil {
		return seedUser{}, fmt.Errorf("seed user %q: %w", id, err)
	}
	return seedUser{id: id, password: rest[:i], role: role}, nil
}

// redactSeed hides everything after the id.
func redactSeed(s string) string {
	id, _, _ := strings.Cut(s, ":")
	return id + ":***"
}

func seedUsers(store *auth.MemoryUserStore, hasher password.Hasher, entries []string) error {
	for _, entry := range entries {
		u, err := parseSeedUser(entry)
		if err != nil {
			return err
		}
		hash, err := hasher.Hash(u.password)
		if err != nil {
			return fmt.Errorf("seed user %q: %w", u.id, err)
		}
		if err := store.Put(u.id, auth.User{ID: u.id, PasswordHash: hash, Role: u.role}); err != nil {
			return fmt.Errorf("seed user %q: %w", u.id, err)
		}
	}
	return nil
}
