package users

import (
	"context"
	"errors"
	"strings"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"
	"inventory-service/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Address  string
}

// Patch holds the fields to change. Nil fields are left alone.
type Patch struct {
	Name     *string
	Email    *string
	Address  *string
	Password *string
	Role     *domain.Role
}

type Service struct {
	store  store.Store
	coord  *coordinator.Coordinator
	logger *zap.Logger
	cost   int
}

func NewService(s store.Store, coord *coordinator.Coordinator, logger *zap.Logger) *Service {
	return &Service{store: s, coord: coord, logger: logger, cost: bcrypt.DefaultCost}
}

// Register creates a customer account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.create(ctx, in, domain.RoleCustomer)
}

// Create makes an account of any role. Only admins may call it.
func (s *Service) Create(ctx context.Context, principal domain.Principal, in RegisterInput, role domain.Role) (*domain.User, error) {
	if !principal.IsAdmin() {
		return nil, domain.NewForbidden("only admins can create %s accounts", role)
	}
	return s.create(ctx, in, role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u, err := domain.NewUser(in.Name, in.Email, role, in.Address, hash)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Users().Create(ctx, u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered",
		zap.String("user_id", created.ID.String()),
		zap.String("role", string(created.Role)),
	)
	return created, nil
}

// EnsureAdmin creates the seed admin unless an account with that email
// already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	existing, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.create(ctx, RegisterInput{Name: "Administrator", Email: email, Password: password}, domain.RoleAdmin)
}

// Authenticate checks a password against the stored hash. Deleted accounts
// never authenticate.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.Deleted || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, principal domain.Principal, id uuid.UUID) (*domain.User, error) {
	if !principal.CanActFor(id) {
		return nil, domain.NewForbidden("cannot read user %s", id)
	}
	return s.store.Users().Get(ctx, id)
}

// Update applies patch to the user. Users may edit themselves; only admins
// edit others or change roles.
func (s *Service) Update(ctx context.Context, principal domain.Principal, id uuid.UUID, expectedVersion int, patch Patch) (*domain.User, error) {
	if !principal.CanActFor(id) {
		return nil, domain.NewForbidden("cannot update user %s", id)
	}
	if patch.Role != nil && !principal.IsAdmin() {
		return nil, domain.NewForbidden("only admins can change roles")
	}

	var hash string
	if patch.Password != nil {
		var err error
		if hash, err = s.hash(*patch.Password); err != nil {
			return nil, err
		}
	}

	var updated *domain.User
	err := s.coord.Run(ctx, "update_user", coordinator.NonIdempotent, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Users().Update(ctx, id, expectedVersion, func(u *domain.User) error {
			if u.Deleted {
				return domain.NewInvalidArgument("user %s has been deleted", id)
			}
			if patch.Name != nil {
				u.Name = strings.TrimSpace(*patch.Name)
			}
			if patch.Email != nil {
				u.Email = domain.NormalizeEmail(*patch.Email)
			}
			if patch.Address != nil {
				u.Address = *patch.Address
			}
			if patch.Role != nil {
				u.Role = *patch.Role
			}
			if hash != "" {
				u.PasswordHash = hash
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the user, or anonymizes it when orders still reference it.
// The returned flag reports whether the record was anonymized.
func (s *Service) Delete(ctx context.Context, principal domain.Principal, id uuid.UUID) (bool, error) {
	if !principal.CanActFor(id) {
		return false, domain.NewForbidden("cannot delete user %s", id)
	}

	err := s.store.Users().Delete(ctx, id)
	if err == nil {
		s.logger.Info("User deleted", zap.String("user_id", id.String()))
		return false, nil
	}
	if !errors.Is(err, domain.ErrReferentialConflict) {
		return false, err
	}

	err = s.coord.Run(ctx, "anonymize_user", coordinator.Idempotent, func(ctx context.Context) error {
		current, err := s.store.Users().Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Deleted {
			return nil
		}
		_, err = s.store.Users().Update(ctx, id, current.Version, func(u *domain.User) error {
			u.Anonymize()
			return nil
		})
		return err
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("User anonymized", zap.String("user_id", id.String()))
	return true, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", domain.NewInvalidArgument("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
