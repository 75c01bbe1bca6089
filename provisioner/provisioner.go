// Package provisioner seeds the privileged accounts (FOUNDER, HR) in the identity
// provider and mirrors each one into the employees table.
package provisioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/equity_backend/identity"
	"github.com/mmdatafocus/equity_backend/models"
	"github.com/mmdatafocus/equity_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type IdentityAdmin interface {
	FindUserByEmail(ctx context.Context, email string) (*identity.User, error)
	CreateUser(ctx context.Context, params identity.CreateUserParams) (*identity.User, error)
	UpdateUserById(ctx context.Context, id string, params identity.UpdateUserParams) (*identity.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type EmployeeDirectory interface {
	DeleteEmployee(ctx context.Context, userId string, email string) error
	EnsureEmployee(ctx context.Context, record models.EmployeeRecord) (models.SchemaCandidate, error)
}

// GormEmployeeDirectory writes employees rows, starting at the resolved schema version.
type GormEmployeeDirectory struct {
	DB    *gorm.DB
	Start int
}

func (d GormEmployeeDirectory) DeleteEmployee(ctx context.Context, userId string, email string) error {
	return models.DeleteEmployeeRow(ctx, d.DB, userId, email)
}

func (d GormEmployeeDirectory) EnsureEmployee(ctx context.Context, record models.EmployeeRecord) (models.SchemaCandidate, error) {
	return models.UpsertEmployee(ctx, d.DB, d.Start, record)
}

type Account struct {
	Email    string
	Password string
	Name     string
	Role     models.EmployeeRole
}

func (a Account) Validate() error {
	if a.Email == "" || a.Password == "" {
		return fmt.Errorf("%s: email and password are required", a.Role)
	}
	if !utils.IsValidEmail(a.Email) {
		return fmt.Errorf("%s: invalid email %q", a.Role, a.Email)
	}
	return nil
}

type Seeded struct {
	Role   models.EmployeeRole
	Email  string
	UserId string
	Schema string
}

type Provisioner struct {
	Identity  IdentityAdmin
	Employees EmployeeDirectory
	Logger    *logrus.Logger

	// DeleteOld removes any existing account and employee row before seeding.
	DeleteOld bool
}

// Run validates every account before touching anything, then seeds them in order.
func (p *Provisioner) Run(ctx context.Context, accounts []Account) ([]Seeded, error) {
	var errs []error
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	seeded := make([]Seeded, 0, len(accounts))
	for _, a := range accounts {
		userId, schema, err := p.createOrReplace(ctx, a)
		if err != nil {
			return seeded, fmt.Errorf("%s %s: %w", a.Role, a.Email, err)
		}
		seeded = append(seeded, Seeded{Role: a.Role, Email: a.Email, UserId: userId, Schema: schema.Version})
	}
	return seeded, nil
}

// CreateOrReplaceUser makes sure the identity account exists with the given password and
// metadata, and that an employees row points at it. It returns the identity user id.
func (p *Provisioner) CreateOrReplaceUser(ctx context.Context, a Account) (string, error) {
	userId, _, err := p.createOrReplace(ctx, a)
	return userId, err
}

func (p *Provisioner) createOrReplace(ctx context.Context, a Account) (string, models.SchemaCandidate, error) {
	if p.DeleteOld {
		if err := p.deleteExisting(ctx, a.Email); err != nil {
			return "", models.SchemaCandidate{}, err
		}
	}

	user, err := p.Identity.FindUserByEmail(ctx, a.Email)
	if err != nil {
		return "", models.SchemaCandidate{}, fmt.Errorf("find user: %w", err)
	}

	if user == nil {
		user, err = p.Identity.CreateUser(ctx, identity.CreateUserParams{
			Email:        a.Email,
			Password:     a.Password,
			EmailConfirm: true,
			UserMetadata: map[string]any{"name": a.Name, "role": string(a.Role)},
		})
		if err != nil {
			return "", models.SchemaCandidate{}, fmt.Errorf("create user: %w", err)
		}
		p.log(a, user.ID, "created identity user")
	} else {
		metadata := make(map[string]any, len(user.UserMetadata)+2)
		for k, v := range user.UserMetadata {
			metadata[k] = v
		}
		metadata["name"] = a.Name
		metadata["role"] = string(a.Role)
		user, err = p.Identity.UpdateUserById(ctx, user.ID, identity.UpdateUserParams{
			Password:     a.Password,
			UserMetadata: metadata,
		})
		if err != nil {
			return "", models.SchemaCandidate{}, fmt.Errorf("update user: %w", err)
		}
		p.log(a, user.ID, "updated identity user")
	}

	schema, err := p.Employees.EnsureEmployee(ctx, models.EmployeeRecord{
		Id:    user.ID,
		Email: a.Email,
		Name:  a.Name,
		Role:  a.Role,
	})
	if err != nil {
		return "", models.SchemaCandidate{}, fmt.Errorf("upsert employee: %w", err)
	}
	return user.ID, schema, nil
}

func (p *Provisioner) deleteExisting(ctx context.Context, email string) error {
	existing, err := p.Identity.FindUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if existing == nil {
		return p.Employees.DeleteEmployee(ctx, "", email)
	}
	if err := p.Employees.DeleteEmployee(ctx, existing.ID, email); err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	if err := p.Identity.DeleteUser(ctx, existing.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (p *Provisioner) log(a Account, userId string, msg string) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithFields(logrus.Fields{
		"role":    a.Role,
		"email":   a.Email,
		"user_id": userId,
	}).Info(msg)
}
