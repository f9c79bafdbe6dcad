package directory

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"bus_tracker/internal/apperr"
	"bus_tracker/internal/models"
	"bus_tracker/internal/store"
)

type RegisterInput struct {
	UserName string
	Email    string
	Password string
	Role     string
	// AllowAdmin is set only when an admin (or the CLI) creates the account.
	AllowAdmin bool
}

type Users struct {
	store store.Users
	now   func() time.Time
	cost  int
}

func NewUsers(s store.Users) *Users {
	return &Users{store: s, now: time.Now, cost: bcrypt.DefaultCost}
}

// Register creates an account. The role defaults to commuter; admin accounts
// need in.AllowAdmin.
func (u *Users) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.UserName)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return nil, apperr.Validation("missing_fields", "userName, email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid_email", "email is not a valid address")
	}
	if len(in.Password) < 6 {
		return nil, apperr.Validation("weak_password", "password must be at least 6 characters")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleCommuter
	}
	if !models.ValidRole(role) {
		return nil, apperr.Validation("invalid_role", "role must be one of admin, operator or commuter")
	}
	if role == models.RoleAdmin && !in.AllowAdmin {
		return nil, apperr.Forbidden("admin_registration_forbidden", "admin accounts can only be created by an admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.cost)
	if err != nil {
		return nil, apperr.Internal(err, "could not hash password")
	}

	now := u.now()
	user := &models.User{
		UserName:  name,
		Email:     email,
		Password:  string(hash),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User registered")
	return user, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords fail the same way.
func (u *Users) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := u.store.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Auth("invalid_credentials", "invalid email or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logrus.WithField("user_id", user.ID).Warn("Authenticate: password mismatch")
		return nil, apperr.Auth("invalid_credentials", "invalid email or password")
	}
	return user, nil
}

func (u *Users) Profile(ctx context.Context, id string) (*models.User, error) {
	return u.store.FindUserByID(ctx, id)
}

// List returns every user, or the users holding role when it is non-empty.
func (u *Users) List(ctx context.Context, role string) ([]models.User, error) {
	if role != "" && !models.ValidRole(role) {
		return nil, apperr.Validation("invalid_role", "role must be one of admin, operator or commuter")
	}
	return u.store.ListUsers(ctx, role)
}
