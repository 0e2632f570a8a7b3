package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"hr_portal/portal/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
}

type BasicProviderArgs struct {
	Secret        []byte
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// Department the bootstrap admin is placed in. The department is created
	// if it does not exist so that a fresh install has a working super admin.
	AdminDepartment string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, uuid.New(), args, hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, args BasicProviderArgs, password []byte) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "id = ? or username = ? or email = ?", userId, args.AdminUsername, args.AdminEmail)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return nil
		}

		user := schema.User{
			Id:        userId,
			Username:  args.AdminUsername,
			Email:     args.AdminEmail,
			IsManager: true,
			Password:  password,
		}
		if result := txn.Create(&user); result.Error != nil {
			slog.Error("sql error creating initial admin user", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		profile := schema.UserProfile{Id: uuid.New(), UserId: userId, HierarchyOrder: schema.DefaultHierarchyOrder}

		if args.AdminDepartment != "" {
			var dept schema.Department
			result := txn.Limit(1).Find(&dept, "name = ?", args.AdminDepartment)
			if result.Error != nil {
				slog.Error("sql error looking up admin department", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			if result.RowsAffected == 0 {
				dept = schema.Department{
					Id:           uuid.New(),
					Name:         args.AdminDepartment,
					BrandPrimary: schema.DefaultBrandPrimary,
					BrandHover:   schema.DefaultBrandHover,
					BrandAccent:  schema.DefaultBrandAccent,
					CreatedAt:    time.Now().UTC(),
				}
				if result := txn.Create(&dept); result.Error != nil {
					slog.Error("sql error creating admin department", "error", result.Error)
					return schema.ErrDbAccessFailed
				}
			}
			profile.DepartmentId = &dept.Id
		}

		if result := txn.Create(&profile); result.Error != nil {
			slog.Error("sql error creating initial admin profile", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := ValueFromContext(r, userIdKey)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			userUUID, err := uuid.Parse(userId)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid user uuid '%v': %v'", userId, err), http.StatusUnauthorized)
				return
			}

			user, err := schema.GetUser(userUUID, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", userId, err), http.StatusInternalServerError)
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) AllowDirectSignup() bool {
	return true
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	var user schema.User
	result := auth.db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return LoginResult{}, ErrUserNotFoundWithEmail
		}
		slog.Error("sql error looking up user by email", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	if user.Password == nil {
		return LoginResult{}, ErrLoginDisabled
	}

	err := bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id, 15*time.Minute)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{UserId: user.Id, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) CreateUser(args NewUserArgs) (uuid.UUID, error) {
	var hashedPwd []byte
	if args.Password != "" {
		var err error
		hashedPwd, err = bcrypt.GenerateFromPassword([]byte(args.Password), 10)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("error encrypting password: %w", err)
		}
	}

	newUser := schema.User{
		Id:        uuid.New(),
		Username:  args.Username,
		Email:     args.Email,
		FirstName: args.FirstName,
		LastName:  args.LastName,
		IsManager: args.IsManager,
		Password:  hashedPwd,
	}

	err := auth.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "username = ? or email = ?", args.Username, args.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing username/email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			if existingUser.Username == args.Username {
				return ErrUsernameAlreadyInUse
			} else {
				return ErrEmailAlreadyInUse
			}
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})

	if err != nil {
		return uuid.UUID{}, fmt.Errorf("error creating new user: %w", err)
	}

	return newUser.Id, nil
}

func (auth *BasicIdentityProvider) DeleteUser(userId uuid.UUID) error {
	// Identity lives in the same database as the rest of the portal, the
	// caller removes the user row along with their other records.
	return nil
}
