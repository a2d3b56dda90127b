package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/sessions"
	"github.com/jrsteele09/go-cda-server/users"
)

const DefaultSessionAge = 24 * time.Hour

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users    users.UserRepo // Staff accounts
	Sessions sessions.Store // Session records
}

// Service authenticates staff, issues sessions and keeps each user to a
// single active session.
type Service struct {
	repos      Repos
	codec      *sessions.Codec
	reconciler *sessions.Reconciler
	sessionAge time.Duration
	nowTime    func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithSessionAge sets how long an issued session stays active
func WithSessionAge(age time.Duration) ServiceOption {
	return func(s *Service) {
		if age > 0 {
			s.sessionAge = age
		}
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, codec *sessions.Codec, reconciler *sessions.Reconciler, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions store is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] codec is required")
	}
	if reconciler == nil {
		return nil, errors.New("[NewService] reconciler is required")
	}

	s := &Service{
		repos:      repos,
		codec:      codec,
		reconciler: reconciler,
		sessionAge: DefaultSessionAge,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// LoginRequest carries the submitted credentials
type LoginRequest struct {
	Username    string
	Password    string
	UserAgent   string
	PreviousKey string // Session key the request arrived with, if any
}

// LoginResult is the outcome of a successful login
type LoginResult struct {
	User    *users.User
	Session sessions.Session
	Purged  int // Earlier sessions of the user removed by this login
}

// SessionState is an authenticated request's session and user
type SessionState struct {
	Session sessions.Session
	Payload sessions.Payload
	User    *users.User
}

// Authenticate checks the username and password of an active user.
func (s *Service) Authenticate(username, password string) (*users.User, error) {
	user, err := s.repos.Users.GetByUsername(username)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		// Keep timing close to a real comparison
		users.CheckPasswordHash(password, dummyHash)
		return nil, InvalidCredentialsErr
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Authenticate] GetByUsername")
	}
	if !user.CheckPassword(password) {
		return nil, InvalidCredentialsErr
	}
	if !user.Active {
		return nil, UserInactiveErr
	}
	return user, nil
}

// Login verifies the credentials, removes every earlier session of the user
// on any device and issues a fresh session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.Authenticate(req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	// The arriving session is never reused, whoever it belonged to
	if req.PreviousKey != "" {
		if err := s.repos.Sessions.Delete(ctx, req.PreviousKey); err != nil {
			return nil, errors.Wrap(err, "[Service.Login] delete previous session")
		}
	}

	now := s.nowTime()
	var session sessions.Session
	purge, err := s.reconciler.PurgeForLogin(ctx, user.ID, func(ctx context.Context) error {
		var issueErr error
		session, issueErr = s.issue(ctx, sessions.Payload{
			AuthUserID: user.ID,
			UserAgent:  req.UserAgent,
			LoginAt:    now.UTC(),
		}, now)
		return issueErr
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] PurgeForLogin")
	}

	if err := s.repos.Users.SetLastLogin(user.ID, now); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] SetLastLogin")
	}
	user.LastLogin = now

	return &LoginResult{User: user, Session: session, Purged: len(purge.Deleted)}, nil
}

// Logout deletes the session with key. Unknown keys are ignored.
func (s *Service) Logout(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.repos.Sessions.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "[Service.Logout] Delete")
	}
	return nil
}

// LogoutAll deletes every active session of the user, then the current
// session, and returns how many active sessions were terminated.
func (s *Service) LogoutAll(ctx context.Context, userID, currentKey string) (int, error) {
	result, err := s.reconciler.TerminateAll(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[Service.LogoutAll] TerminateAll")
	}
	if err := s.Logout(ctx, currentKey); err != nil {
		return 0, err
	}
	return len(result.Deleted), nil
}

// Resolve loads the session for key and its user. It returns
// sessions.ErrSessionNotFound when the record is gone and
// apperrors.ErrSessionExpired when it is past its expiry.
func (s *Service) Resolve(ctx context.Context, key string) (*SessionState, error) {
	session, err := s.repos.Sessions.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !session.Active(s.nowTime()) {
		return nil, apperrors.ErrSessionExpired
	}

	payload, decodeErr := s.codec.Decode(session)
	if decodeErr != nil {
		return nil, decodeErr
	}
	if !payload.Authenticated() {
		return nil, SessionUserMissingErr
	}

	user, err := s.repos.Users.GetByID(payload.AuthUserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Resolve] GetByID")
	}
	if !user.Active {
		return nil, UserInactiveErr
	}
	return &SessionState{Session: session, Payload: payload, User: user}, nil
}

// Reconcile enforces the single-session rule for the request's session.
func (s *Service) Reconcile(ctx context.Context, userID, key string) (sessions.Result, error) {
	return s.reconciler.Reconcile(ctx, userID, key)
}

func (s *Service) issue(ctx context.Context, payload sessions.Payload, now time.Time) (sessions.Session, error) {
	key, err := sessions.NewKey()
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[Service.issue] NewKey")
	}
	data, err := s.codec.Encode(payload)
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[Service.issue] Encode")
	}

	session := sessions.Session{Key: key, Data: data, ExpireAt: now.Add(s.sessionAge)}
	if err := s.repos.Sessions.Save(ctx, session); err != nil {
		return sessions.Session{}, errors.Wrap(err, "[Service.issue] Save")
	}
	return session, nil
}

// bcrypt hash of a random string, compared against when the user does not exist
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z6mYy8x4jN8F6j1Yk1cWZ4hK"
