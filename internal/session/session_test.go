package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-chat/internal/client"
	"wellness-chat/internal/models"
	"wellness-chat/internal/typing"
)

type fakeBackend struct {
	signInErr  error
	signOutErr error
	tokens     []string
	signOuts   int
}

func (f *fakeBackend) SignIn(ctx context.Context, idToken string) (client.SignInResult, error) {
	f.tokens = append(f.tokens, idToken)
	if f.signInErr != nil {
		return client.SignInResult{}, f.signInErr
	}
	return client.SignInResult{Token: "s", User: models.User{ID: "uid-a", Email: "a@x.com", Online: true}}, nil
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	f.signOuts++
	return f.signOutErr
}

func TestSignInNotifiesListeners(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAdapter(backend, StaticConsent("provider-token"), zap.NewNop())

	var seen []*models.User
	unsubscribe := a.OnIdentityChange(func(u *models.User) { seen = append(seen, u) })
	require.Len(t, seen, 1)
	require.Nil(t, seen[0])

	user, err := a.SignIn(context.Background())
	require.NoError(t, err)
	require.True(t, user.Online)
	require.Equal(t, []string{"provider-token"}, backend.tokens)
	require.Len(t, seen, 2)
	require.Equal(t, "uid-a", seen[1].ID)

	require.NoError(t, a.SignOut(context.Background()))
	require.Equal(t, 1, backend.signOuts)
	require.Len(t, seen, 3)
	require.Nil(t, seen[2])
	require.Nil(t, a.Current())

	unsubscribe()
	_, err = a.SignIn(context.Background())
	require.NoError(t, err)
	require.Len(t, seen, 3)
}

func TestSignInFailureIsAuthError(t *testing.T) {
	a := NewAdapter(&fakeBackend{signInErr: errors.New("401")}, StaticConsent("t"), zap.NewNop())

	_, err := a.SignIn(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "sign in", authErr.Op)
	require.Nil(t, a.Current())
}

func TestCancelledConsent(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAdapter(backend, StaticConsent(""), zap.NewNop())

	_, err := a.SignIn(context.Background())
	require.ErrorIs(t, err, ErrConsentCancelled)
	require.Empty(t, backend.tokens)
}

func TestSignOutFailureKeepsIdentity(t *testing.T) {
	a := NewAdapter(&fakeBackend{signOutErr: errors.New("offline")}, StaticConsent("t"), zap.NewNop())
	_, err := a.SignIn(context.Background())
	require.NoError(t, err)

	err = a.SignOut(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.NotNil(t, a.Current())
}

func TestPromptConsent(t *testing.T) {
	var out bytes.Buffer
	p := PromptConsent{In: strings.NewReader("  abc.def \n"), Out: &out}

	token, err := p.IDToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc.def", token)
	require.Contains(t, out.String(), "identity token")
}

func TestSignOutClearsTypingWhileSessionIsValid(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path+" auth="+r.Header.Get("Authorization"))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.SignInResult{Token: "session-1", User: models.User{ID: "uid-a", Email: "a@x.com"}})
	})
	mux.HandleFunc("/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/groups/g1/typing", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	api, err := client.New(srv.URL, zap.NewNop())
	require.NoError(t, err)
	signal := typing.NewSignal(api, time.Minute, zap.NewNop())
	a := NewAdapter(api, StaticConsent("provider-token"), zap.NewNop())
	a.BeforeSignOut(signal.Flush)

	_, err = a.SignIn(context.Background())
	require.NoError(t, err)
	require.NoError(t, signal.Announce(context.Background(), "g1"))
	require.NoError(t, a.SignOut(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"POST /groups/g1/typing auth=Bearer session-1",
		"DELETE /groups/g1/typing auth=Bearer session-1",
		"POST /auth/signout auth=Bearer session-1",
	}, calls)
	require.Empty(t, api.Token())
}

func TestRemovedSignOutHookIsSkipped(t *testing.T) {
	a := NewAdapter(&fakeBackend{}, StaticConsent("t"), zap.NewNop())
	ran := 0
	remove := a.BeforeSignOut(func() { ran++ })

	_, err := a.SignIn(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.SignOut(context.Background()))
	require.Equal(t, 1, ran)

	remove()
	_, err = a.SignIn(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.SignOut(context.Background()))
	require.Equal(t, 1, ran)
}
