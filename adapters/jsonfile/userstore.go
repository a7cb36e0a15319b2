package jsonfile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// usersDoc is the users.json document shape.
type usersDoc struct {
	Users []ports.User `json:"users"`
}

// UserStore persists user accounts in users.json.
type UserStore struct {
	file  *File[usersDoc]
	clock ports.Clock
	idGen ports.IDGenerator
}

// NewUserStore creates a user store under dir.
func NewUserStore(dir string, clk ports.Clock, idGen ports.IDGenerator, log zerolog.Logger) *UserStore {
	return &UserStore{
		file: New(filepath.Join(dir, "users.json"), func() usersDoc {
			return usersDoc{Users: []ports.User{}}
		}, log),
		clock: clk,
		idGen: idGen,
	}
}

func sameUsername(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// GetByUsername retrieves a user by username (case-insensitive).
func (s *UserStore) GetByUsername(ctx context.Context, username string) (ports.User, error) {
	if err := ctx.Err(); err != nil {
		return ports.User{}, err
	}
	doc, err := s.file.Read()
	if err != nil {
		return ports.User{}, err
	}
	for _, u := range doc.Users {
		if sameUsername(u.Username, username) {
			return u, nil
		}
	}
	return ports.User{}, fmt.Errorf("user %q: %w", username, ports.ErrNotFound)
}

// Create stores a new user. The ID and creation time are assigned here.
func (s *UserStore) Create(ctx context.Context, u ports.User) error {
	return s.file.Update(ctx, func(doc *usersDoc) error {
		for _, existing := range doc.Users {
			if sameUsername(existing.Username, u.Username) {
				return fmt.Errorf("user %q: %w", u.Username, ports.ErrExists)
			}
		}
		if u.ID == "" {
			u.ID = "u_" + s.idGen.New()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = s.clock.Now()
		}
		doc.Users = append(doc.Users, u)
		return nil
	})
}

// List returns all users with password hashes stripped.
func (s *UserStore) List(ctx context.Context) ([]ports.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	out := make([]ports.User, len(doc.Users))
	for i, u := range doc.Users {
		u.PassHash = nil
		out[i] = u
	}
	return out, nil
}

// SetRole updates a user's role.
func (s *UserStore) SetRole(ctx context.Context, username, role string) error {
	return s.mutateUser(ctx, username, func(u *ports.User) { u.Role = role })
}

// SetPlan updates a user's plan tier.
func (s *UserStore) SetPlan(ctx context.Context, username, planID string) error {
	return s.mutateUser(ctx, username, func(u *ports.User) { u.Plan = planID })
}

// ResetPassword replaces a user's password hash.
func (s *UserStore) ResetPassword(ctx context.Context, username string, passHash []byte) error {
	return s.mutateUser(ctx, username, func(u *ports.User) { u.PassHash = passHash })
}

// Delete removes a user.
func (s *UserStore) Delete(ctx context.Context, username string) error {
	return s.file.Update(ctx, func(doc *usersDoc) error {
		for i, u := range doc.Users {
			if sameUsername(u.Username, username) {
				doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("user %q: %w", username, ports.ErrNotFound)
	})
}

func (s *UserStore) mutateUser(ctx context.Context, username string, fn func(*ports.User)) error {
	return s.file.Update(ctx, func(doc *usersDoc) error {
		for i := range doc.Users {
			if sameUsername(doc.Users[i].Username, username) {
				fn(&doc.Users[i])
				return nil
			}
		}
		return fmt.Errorf("user %q: %w", username, ports.ErrNotFound)
	})
}

// Ensure interface compliance.
var _ ports.UserStore = (*UserStore)(nil)
