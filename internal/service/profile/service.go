// Package profile manages accounts, credentials and the dating profile.
package profile

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/db"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
	"github.com/oggyb/muzz-events/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// Service implements registration, sign-in and profile storage.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository

	// hashCost is the bcrypt cost for new passwords.
	hashCost int
	images   ImageStore
}

// NewProfileService creates a profile service hashing with bcrypt.DefaultCost.
func NewProfileService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

// Input carries the editable profile fields.
type Input struct {
	Email      string   `json:"email"`
	FirstName  string   `json:"firstname"`
	LastName   string   `json:"lastname"`
	Gender     string   `json:"gender"`
	Age        int      `json:"age"`
	Hobbies    []string `json:"hobbies"`
	Interests  []string `json:"preferences"`
	Phone      string   `json:"phone_number"`
	Bio        string   `json:"bio"`
	ImageRef   string   `json:"image_url"`
	LookingFor string   `json:"lookingfor"`
	OpenFor    string   `json:"openfor"`
}

// View is the public shape of a profile.
type View struct {
	ID         uint64   `json:"id"`
	Email      string   `json:"email"`
	FirstName  string   `json:"firstname"`
	LastName   string   `json:"lastname"`
	Gender     string   `json:"gender"`
	Age        int      `json:"age"`
	Hobbies    []string `json:"hobbies"`
	Interests  []string `json:"preferences"`
	Phone      string   `json:"phone_number"`
	Bio        string   `json:"bio"`
	ImageURL   string   `json:"image_url,omitempty"`
	LookingFor string   `json:"lookingfor,omitempty"`
	OpenFor    string   `json:"openfor,omitempty"`
}

// Account is a user without credentials.
type Account struct {
	ID     uint64 `json:"id"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

// Register creates an account.
//
// Behavior:
//   - Missing email or password, or a malformed email → InvalidArgument.
//   - A taken email → Conflict.
//   - The password is stored as a bcrypt hash only.
func (s *Service) Register(ctx context.Context, email, password string) (*db.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, svcErr.InvalidArgument("Email and password are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, svcErr.InvalidArgument("Invalid email format")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		// bcrypt rejects passwords over 72 bytes
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, svcErr.InvalidArgument("Password is too long")
		}
		return nil, svcErr.Map(err)
	}

	u := &db.User{Email: email, PasswordHash: string(hash), Active: true}
	err = s.users.Create(ctx, u)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, svcErr.Conflict("Email already exists")
	}
	if err != nil {
		s.appCtx.Logger.Error("Register failed", "email", email, "err", err)
		return nil, svcErr.Map(err)
	}

	s.appCtx.Logger.Info("user registered", "user", u.ID)
	return u, nil
}

// SignIn checks credentials and records the login time.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (*db.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, svcErr.InvalidArgument("Email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.Unauthenticated("Invalid credentials")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.appCtx.Logger.Warn("sign-in rejected", "user", u.ID)
		return nil, svcErr.Unauthenticated("Invalid credentials")
	}
	if !u.Active {
		return nil, svcErr.Forbidden("Account is disabled")
	}

	if err := s.users.TouchLogin(ctx, u.ID, s.appCtx.Now()); err != nil {
		s.appCtx.Logger.Warn("failed to record login", "user", u.ID, "err", err)
	}
	return u, nil
}

// UpsertProfile stores the profile of the account owning in.Email.
// Returns true when the profile was created rather than updated.
func (s *Service) UpsertProfile(ctx context.Context, in Input) (bool, error) {
	u, err := s.userByEmail(ctx, in.Email)
	if err != nil {
		return false, err
	}
	if in.Age < 0 {
		return false, svcErr.InvalidArgument("Age must not be negative")
	}

	p := &db.Profile{
		UserID:     u.ID,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Gender:     strings.TrimSpace(in.Gender),
		Age:        in.Age,
		Hobbies:    in.Hobbies,
		Interests:  in.Interests,
		Phone:      in.Phone,
		Bio:        in.Bio,
		ImageRef:   in.ImageRef,
		LookingFor: in.LookingFor,
		OpenFor:    in.OpenFor,
	}
	// relationship fields and the image are owned by their own endpoints
	if u.Profile != nil {
		if p.LookingFor == "" {
			p.LookingFor = u.Profile.LookingFor
		}
		if p.OpenFor == "" {
			p.OpenFor = u.Profile.OpenFor
		}
		if p.ImageRef == "" {
			p.ImageRef = u.Profile.ImageRef
		}
	}

	if err := s.users.UpsertProfile(ctx, p); err != nil {
		s.appCtx.Logger.Error("UpsertProfile failed", "user", u.ID, "err", err)
		return false, svcErr.Map(err)
	}
	return u.Profile == nil, nil
}

// SetRelationship updates what the user is looking for and open to.
// The profile must already exist.
func (s *Service) SetRelationship(ctx context.Context, email, lookingFor, openFor string) error {
	if lookingFor == "" || openFor == "" {
		return svcErr.InvalidArgument("Missing required fields")
	}
	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.Profile == nil {
		return svcErr.NotFound("Profile not found")
	}

	p := *u.Profile
	p.LookingFor, p.OpenFor = lookingFor, openFor
	if err := s.users.UpsertProfile(ctx, &p); err != nil {
		return svcErr.Map(err)
	}
	return nil
}

// Relationship is one user's relationship intent.
type Relationship struct {
	UserID     uint64 `json:"user_auth_id"`
	Email      string `json:"email"`
	LookingFor string `json:"lookingfor"`
	OpenFor    string `json:"openfor"`
}

// ListRelationships returns every stated relationship intent, by user id.
func (s *Service) ListRelationships(ctx context.Context) ([]Relationship, error) {
	profiles, err := s.users.ProfilesWithRelationship(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	ids := make([]uint64, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	users, err := s.users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := make([]Relationship, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, Relationship{
			UserID:     p.UserID,
			Email:      users[p.UserID].Email,
			LookingFor: p.LookingFor,
			OpenFor:    p.OpenFor,
		})
	}
	return out, nil
}

// GetProfile returns the profile of email. A user without a profile → NotFound.
func (s *Service) GetProfile(ctx context.Context, email string) (*View, error) {
	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Profile == nil {
		return nil, svcErr.NotFound("Profile not found")
	}
	v := viewOf(*u)
	return &v, nil
}

// ListProfiles returns every active user's profile.
func (s *Service) ListProfiles(ctx context.Context) ([]View, error) {
	users, err := s.users.ListActiveWithProfiles(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]View, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	return out, nil
}

// ListAccounts returns every account without credentials.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]Account, 0, len(users))
	for _, u := range users {
		out = append(out, Account{ID: u.ID, Email: u.Email, Active: u.Active})
	}
	return out, nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (*db.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, svcErr.InvalidArgument("Email is required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("No User registered with this mail")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return u, nil
}

func viewOf(u db.User) View {
	v := View{ID: u.ID, Email: u.Email, Hobbies: []string{}, Interests: []string{}}
	if p := u.Profile; p != nil {
		v.FirstName, v.LastName = p.FirstName, p.LastName
		v.Gender, v.Age = p.Gender, p.Age
		if p.Hobbies != nil {
			v.Hobbies = p.Hobbies
		}
		if p.Interests != nil {
			v.Interests = p.Interests
		}
		v.Phone, v.Bio, v.ImageURL = p.Phone, p.Bio, p.ImageRef
		v.LookingFor, v.OpenFor = p.LookingFor, p.OpenFor
	}
	return v
}
