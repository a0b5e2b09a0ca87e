// Package memory is an in-process repository.Store. Transactions run against
// a copy of the tables and are published on commit, so a failed unit of work
// leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskhub/internal/ids"
	"taskhub/internal/models"
	"taskhub/internal/permission"
	"taskhub/internal/repository"
)

type tables struct {
	users      map[string]models.User
	accounts   map[string]models.Account
	codes      map[string]models.VerificationCode
	sessions   map[string]models.Session
	workspaces map[string]models.Workspace
	members    map[string]models.Member
	roles      map[string]models.RoleRecord
}

func newTables() *tables {
	return &tables{
		users:      map[string]models.User{},
		accounts:   map[string]models.Account{},
		codes:      map[string]models.VerificationCode{},
		sessions:   map[string]models.Session{},
		workspaces: map[string]models.Workspace{},
		members:    map[string]models.Member{},
		roles:      map[string]models.RoleRecord{},
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.codes {
		c.codes[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.workspaces {
		c.workspaces[k] = v
	}
	for k, v := range t.members {
		c.members[k] = v
	}
	for k, v := range t.roles {
		c.roles[k] = v
	}
	return c
}

type Option func(*Store)

// WithRoles replaces the seeded roles with the given names.
func WithRoles(names ...string) Option {
	return func(s *Store) {
		s.data.roles = map[string]models.RoleRecord{}
		for _, name := range names {
			s.seedRole(name)
		}
	}
}

type Store struct {
	mu   sync.Mutex
	data *tables
}

var _ repository.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{data: newTables()}
	for _, name := range []string{"OWNER", "ADMIN", "MEMBER"} {
		s.seedRole(name)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) seedRole(name string) {
	var perms []string
	if role, ok := permission.ParseRole(name); ok {
		for _, p := range permission.Permissions(role) {
			perms = append(perms, string(p))
		}
	}
	id := ids.New()
	s.data.roles[id] = models.RoleRecord{ID: id, Name: name, Permissions: perms}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, repos{store: s, tx: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Users() repository.Users                         { return users{repos{store: s}} }
func (s *Store) Accounts() repository.Accounts                   { return accounts{repos{store: s}} }
func (s *Store) VerificationCodes() repository.VerificationCodes { return codes{repos{store: s}} }
func (s *Store) Sessions() repository.Sessions                   { return sessions{repos{store: s}} }
func (s *Store) Workspaces() repository.Workspaces               { return workspaces{repos{store: s}} }
func (s *Store) Members() repository.Members                     { return members{repos{store: s}} }
func (s *Store) Roles() repository.Roles                         { return roles{repos{store: s}} }

// Counts reports table sizes.
type Counts struct {
	Users, Accounts, Codes, Sessions, Workspaces, Members int
}

func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Users:      len(s.data.users),
		Accounts:   len(s.data.accounts),
		Codes:      len(s.data.codes),
		Sessions:   len(s.data.sessions),
		Workspaces: len(s.data.workspaces),
		Members:    len(s.data.members),
	}
}

// Workspace returns a stored workspace by id.
func (s *Store) Workspace(id string) (models.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.data.workspaces[id]
	return w, ok
}

// MembersOf lists the memberships held by a user.
func (s *Store) MembersOf(userID string) []models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Member
	for _, m := range s.data.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

// CodesFor lists a user's verification codes of one purpose, newest first.
func (s *Store) CodesFor(userID string, purpose models.VerificationPurpose) []models.VerificationCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VerificationCode
	for _, c := range s.data.codes {
		if c.UserID == userID && c.Purpose == purpose {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// repos reads the committed tables under the store lock, or the working copy
// of an open transaction.
type repos struct {
	store *Store
	tx    *tables
}

func (r repos) with(fn func(t *tables) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

func (r repos) Users() repository.Users                         { return users{r} }
func (r repos) Accounts() repository.Accounts                   { return accounts{r} }
func (r repos) VerificationCodes() repository.VerificationCodes { return codes{r} }
func (r repos) Sessions() repository.Sessions                   { return sessions{r} }
func (r repos) Workspaces() repository.Workspaces               { return workspaces{r} }
func (r repos) Members() repository.Members                     { return members{r} }
func (r repos) Roles() repository.Roles                         { return roles{r} }

type users struct{ repos }

func (u users) Create(_ context.Context, user models.User) error {
	return u.with(func(t *tables) error {
		user.Email = strings.ToLower(user.Email)
		for _, existing := range t.users {
			if existing.Email == user.Email {
				return repository.ErrConflict
			}
		}
		if _, ok := t.users[user.ID]; ok {
			return repository.ErrConflict
		}
		now := time.Now()
		user.CreatedAt, user.UpdatedAt = now, now
		t.users[user.ID] = user
		return nil
	})
}

func (u users) FindByEmail(_ context.Context, email string) (models.User, error) {
	var found models.User
	err := u.with(func(t *tables) error {
		email = strings.ToLower(email)
		for _, user := range t.users {
			if user.Email == email {
				found = user
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

func (u users) GetByID(_ context.Context, id string) (models.User, error) {
	var found models.User
	err := u.with(func(t *tables) error {
		user, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		found = user
		return nil
	})
	return found, err
}

func (u users) update(id string, fn func(user *models.User)) error {
	return u.with(func(t *tables) error {
		user, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		fn(&user)
		user.UpdatedAt = time.Now()
		t.users[id] = user
		return nil
	})
}

func (u users) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	return u.update(id, func(user *models.User) { user.PasswordHash = passwordHash })
}

func (u users) MarkEmailVerified(_ context.Context, id string) error {
	return u.update(id, func(user *models.User) { user.IsEmailVerified = true })
}

func (u users) UpdateMFA(_ context.Context, id string, enabled bool, secret string) error {
	return u.update(id, func(user *models.User) {
		user.Preferences.Enable2FA = enabled
		user.Preferences.TwoFactorSecret = secret
	})
}

func (u users) SetCurrentWorkspace(_ context.Context, id string, workspaceID string) error {
	return u.update(id, func(user *models.User) { user.CurrentWorkspace = &workspaceID })
}

func (u users) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return u.update(id, func(user *models.User) { user.LastLogin = &at })
}

func (u users) UpdateProfilePicture(_ context.Context, id string, picture string) error {
	return u.update(id, func(user *models.User) { user.ProfilePicture = &picture })
}

func (u users) Delete(_ context.Context, id string) error {
	return u.with(func(t *tables) error {
		if _, ok := t.users[id]; !ok {
			return repository.ErrNotFound
		}
		delete(t.users, id)
		for k, a := range t.accounts {
			if a.UserID == id {
				delete(t.accounts, k)
			}
		}
		for k, c := range t.codes {
			if c.UserID == id {
				delete(t.codes, k)
			}
		}
		for k, sess := range t.sessions {
			if sess.UserID == id {
				delete(t.sessions, k)
			}
		}
		owned := map[string]bool{}
		for k, w := range t.workspaces {
			if w.OwnerID == id {
				owned[k] = true
				delete(t.workspaces, k)
			}
		}
		for k, m := range t.members {
			if m.UserID == id || owned[m.WorkspaceID] {
				delete(t.members, k)
			}
		}
		return nil
	})
}

type accounts struct{ repos }

func (a accounts) Create(_ context.Context, account models.Account) error {
	return a.with(func(t *tables) error {
		if _, ok := t.users[account.UserID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range t.accounts {
			if existing.Provider == account.Provider && existing.ProviderID == account.ProviderID {
				return repository.ErrConflict
			}
		}
		account.CreatedAt = time.Now()
		t.accounts[account.ID] = account
		return nil
	})
}

func (a accounts) FindByProvider(_ context.Context, provider models.Provider, providerID string) (models.Account, error) {
	var found models.Account
	err := a.with(func(t *tables) error {
		for _, account := range t.accounts {
			if account.Provider == provider && account.ProviderID == providerID {
				found = account
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

type codes struct{ repos }

func (c codes) Create(_ context.Context, code models.VerificationCode) error {
	return c.with(func(t *tables) error {
		if _, ok := t.users[code.UserID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range t.codes {
			if existing.Code == code.Code {
				return repository.ErrConflict
			}
		}
		t.codes[code.ID] = code
		return nil
	})
}

func (c codes) FindValid(_ context.Context, code string, purpose models.VerificationPurpose, now time.Time) (models.VerificationCode, error) {
	var found models.VerificationCode
	err := c.with(func(t *tables) error {
		for _, vc := range t.codes {
			if vc.Code == code && vc.Purpose == purpose && !vc.Expired(now) {
				found = vc
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

func (c codes) Delete(_ context.Context, id string) error {
	return c.with(func(t *tables) error {
		if _, ok := t.codes[id]; !ok {
			return repository.ErrNotFound
		}
		delete(t.codes, id)
		return nil
	})
}

func (c codes) CountSince(_ context.Context, userID string, purpose models.VerificationPurpose, since time.Time) (int, error) {
	var count int
	err := c.with(func(t *tables) error {
		for _, vc := range t.codes {
			if vc.UserID == userID && vc.Purpose == purpose && vc.CreatedAt.After(since) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (c codes) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := c.with(func(t *tables) error {
		for id, vc := range t.codes {
			if vc.Expired(now) {
				delete(t.codes, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type sessions struct{ repos }

func (s sessions) Create(_ context.Context, session models.Session) error {
	return s.with(func(t *tables) error {
		if _, ok := t.users[session.UserID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := t.sessions[session.ID]; ok {
			return repository.ErrConflict
		}
		t.sessions[session.ID] = session
		return nil
	})
}

func (s sessions) GetByID(_ context.Context, id string) (models.Session, error) {
	var found models.Session
	err := s.with(func(t *tables) error {
		session, ok := t.sessions[id]
		if !ok {
			return repository.ErrNotFound
		}
		found = session
		return nil
	})
	return found, err
}

func (s sessions) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	return s.with(func(t *tables) error {
		session, ok := t.sessions[id]
		if !ok {
			return repository.ErrNotFound
		}
		session.ExpiresAt = expiresAt
		t.sessions[id] = session
		return nil
	})
}

func (s sessions) DeleteByID(_ context.Context, id string) error {
	return s.with(func(t *tables) error {
		delete(t.sessions, id)
		return nil
	})
}

func (s sessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := s.with(func(t *tables) error {
		for id, session := range t.sessions {
			if session.UserID == userID {
				delete(t.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s sessions) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	err := s.with(func(t *tables) error {
		out = userSessions(t, userID)
		return nil
	})
	return out, err
}

func (s sessions) CountByUser(_ context.Context, userID string) (int, error) {
	var n int
	err := s.with(func(t *tables) error {
		n = len(userSessions(t, userID))
		return nil
	})
	return n, err
}

func (s sessions) DeleteOldest(_ context.Context, userID string, keepLatest int) error {
	return s.with(func(t *tables) error {
		list := userSessions(t, userID)
		if keepLatest < 0 {
			keepLatest = 0
		}
		for i := keepLatest; i < len(list); i++ {
			delete(t.sessions, list[i].ID)
		}
		return nil
	})
}

func (s sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.with(func(t *tables) error {
		for id, session := range t.sessions {
			if session.Expired(now) {
				delete(t.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// userSessions returns a user's sessions, newest first.
func userSessions(t *tables, userID string) []models.Session {
	var out []models.Session
	for _, session := range t.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

type workspaces struct{ repos }

func (w workspaces) Create(_ context.Context, workspace models.Workspace) error {
	return w.with(func(t *tables) error {
		if _, ok := t.users[workspace.OwnerID]; !ok {
			return repository.ErrNotFound
		}
		now := time.Now()
		workspace.CreatedAt, workspace.UpdatedAt = now, now
		t.workspaces[workspace.ID] = workspace
		return nil
	})
}

type members struct{ repos }

func (m members) Create(_ context.Context, member models.Member) error {
	return m.with(func(t *tables) error {
		if _, ok := t.workspaces[member.WorkspaceID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := t.roles[member.RoleID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range t.members {
			if existing.UserID == member.UserID && existing.WorkspaceID == member.WorkspaceID {
				return repository.ErrConflict
			}
		}
		member.JoinedAt = time.Now()
		t.members[member.ID] = member
		return nil
	})
}

func (m members) RoleName(_ context.Context, userID string, workspaceID string) (string, error) {
	var name string
	err := m.with(func(t *tables) error {
		for _, member := range t.members {
			if member.UserID == userID && member.WorkspaceID == workspaceID {
				role, ok := t.roles[member.RoleID]
				if !ok {
					return repository.ErrNotFound
				}
				name = role.Name
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return name, err
}

type roles struct{ repos }

func (r roles) FindByName(_ context.Context, name string) (models.RoleRecord, error) {
	var found models.RoleRecord
	err := r.with(func(t *tables) error {
		for _, role := range t.roles {
			if role.Name == name {
				found = role
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return found, err
}

// SeedMember adds a membership with the named role directly, for gate tests.
func (s *Store) SeedMember(userID, workspaceID, roleName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roleID := ""
	for id, role := range s.data.roles {
		if role.Name == roleName {
			roleID = id
		}
	}
	if roleID == "" {
		roleID = ids.New()
		s.data.roles[roleID] = models.RoleRecord{ID: roleID, Name: roleName}
	}
	id := ids.New()
	s.data.members[id] = models.Member{ID: id, UserID: userID, WorkspaceID: workspaceID, RoleID: roleID, JoinedAt: time.Now()}
}
