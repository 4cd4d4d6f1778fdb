// ABOUTME: Per-provider user table with plaintext password comparison
// ABOUTME: Passwords are compared by plain equality and are never hashed

package auth

import (
	"sync"
)

// user is a registered account. Passwords are stored and compared in plain
// text; this is a known weakness of the local providers.
type user struct {
	username    string
	password    string
	roles       []string
	permissions []string
}

// userTable is a concurrency-safe username -> user map owned by one provider.
type userTable struct {
	mu    sync.RWMutex
	users map[string]*user
}

func newUserTable() *userTable {
	return &userTable{users: make(map[string]*user)}
}

func (t *userTable) add(username, password string, roles, permissions []string) {
	u := &user{
		username:    username,
		password:    password,
		roles:       cloneStrings(roles),
		permissions: cloneStrings(permissions),
	}
	t.mu.Lock()
	t.users[username] = u
	t.mu.Unlock()
}

func (t *userTable) remove(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.users[username]
	delete(t.users, username)
	return ok
}

// get returns a copy of the user so callers never share slices with the table.
func (t *userTable) get(username string) (*user, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.users[username]
	if !ok {
		return nil, false
	}
	return &user{
		username:    u.username,
		password:    u.password,
		roles:       cloneStrings(u.roles),
		permissions: cloneStrings(u.permissions),
	}, true
}

// check returns the user when both fields are non-empty and the password matches.
func (t *userTable) check(creds Credentials) (*user, bool) {
	username := creds["username"]
	password := creds["password"]
	if username == "" || password == "" {
		return nil, false
	}
	u, ok := t.get(username)
	if !ok || u.password != password {
		return nil, false
	}
	return u, true
}
