package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"wellness-chat/internal/client"
	"wellness-chat/internal/models"
)

// AuthError is returned when sign-in or sign-out fails. It is never retried.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

var ErrConsentCancelled = errors.New("consent cancelled")

// ConsentFlow runs the identity provider's interactive consent and returns an ID token.
type ConsentFlow interface {
	IDToken(ctx context.Context) (string, error)
}

// StaticConsent returns a token obtained out of band.
type StaticConsent string

func (s StaticConsent) IDToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrConsentCancelled
	}
	return strings.TrimSpace(string(s)), nil
}

// PromptConsent asks for a token on a terminal.
type PromptConsent struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptConsent) IDToken(ctx context.Context) (string, error) {
	fmt.Fprint(p.Out, "Paste identity token: ")
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return StaticConsent(line).IDToken(ctx)
}

type Backend interface {
	SignIn(ctx context.Context, idToken string) (client.SignInResult, error)
	SignOut(ctx context.Context) error
}

// Adapter holds the signed-in identity and notifies listeners when it changes.
type Adapter struct {
	backend Backend
	consent ConsentFlow
	log     *zap.Logger

	mu        sync.Mutex
	user      *models.User
	listeners map[int]func(*models.User)
	hooks     map[int]func()
	nextID    int
}

func NewAdapter(backend Backend, consent ConsentFlow, logger *zap.Logger) *Adapter {
	return &Adapter{
		backend:   backend,
		consent:   consent,
		log:       logger,
		listeners: make(map[int]func(*models.User)),
		hooks:     make(map[int]func()),
	}
}

// SignIn runs the consent flow and registers the user as online.
func (a *Adapter) SignIn(ctx context.Context) (models.User, error) {
	token, err := a.consent.IDToken(ctx)
	if err != nil {
		return models.User{}, &AuthError{Op: "consent", Err: err}
	}
	res, err := a.backend.SignIn(ctx, token)
	if err != nil {
		return models.User{}, &AuthError{Op: "sign in", Err: err}
	}

	user := res.User
	a.log.Info("signed in", zap.String("user_id", user.ID), zap.String("email", user.Email))
	a.set(&user)
	return user, nil
}

// SignOut marks the user offline on the server, then clears the local identity.
// Hooks registered with BeforeSignOut run first, while the session is still
// valid. On failure the identity is kept so the caller can retry.
func (a *Adapter) SignOut(ctx context.Context) error {
	if a.Current() == nil {
		return nil
	}
	a.mu.Lock()
	hooks := make([]func(), 0, len(a.hooks))
	for _, fn := range a.hooks {
		hooks = append(hooks, fn)
	}
	a.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	if err := a.backend.SignOut(ctx); err != nil {
		return &AuthError{Op: "sign out", Err: err}
	}
	a.set(nil)
	return nil
}

func (a *Adapter) Current() *models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// OnIdentityChange calls fn with the current identity right away and again on
// every change. nil means signed out.
func (a *Adapter) OnIdentityChange(fn func(*models.User)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	fn(a.Current())
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// BeforeSignOut registers fn to run at the start of every SignOut.
func (a *Adapter) BeforeSignOut(fn func()) (remove func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.hooks[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.hooks, id)
	}
}

func (a *Adapter) set(user *models.User) {
	a.mu.Lock()
	a.user = user
	listeners := make([]func(*models.User), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(a.Current())
	}
}
