/*
identity.go - Token-to-account resolution

PURPOSE:
  Maps a scanned or typed token (student card ID) to a verified Student
  account. Pure lookup plus validation: no state, no caching, no side
  effects. After a successful checkout the caller re-resolves the same
  token to obtain the post-transaction balance.

Staff and admin accounts authenticate through a separate path and are
deliberately not resolvable here.
*/
package canteen

import (
	"context"
	"strings"
)

// Resolver resolves external tokens to Student accounts.
type Resolver struct {
	accounts AccountStore
}

// NewResolver creates a resolver over the given account store.
func NewResolver(accounts AccountStore) *Resolver {
	return &Resolver{accounts: accounts}
}

// Resolve looks up the Student account for a token.
//
// The token is trimmed first; an empty token is a ValidationError.
// A token with no match, or one that matches a non-Student account,
// fails with ErrIdentityNotFound.
func (r *Resolver) Resolve(ctx context.Context, token string) (Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Account{}, &ValidationError{Field: "token", Message: "must not be empty"}
	}

	acct, err := r.accounts.AccountByToken(ctx, token)
	if err != nil {
		return Account{}, err
	}
	if acct == nil || !acct.IsStudent() {
		return Account{}, ErrIdentityNotFound
	}
	return *acct, nil
}
