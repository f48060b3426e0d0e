package remoting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAuthAccepts(t *testing.T) {
	t.Parallel()

	auth := NewStaticAuth([]User{
		{ID: "alice", Password: "secret", Role: "admin", Token: "tok"},
	})

	auth.SetCredentials("alice", "secret")
	res, err := auth.Authenticate()
	require.NoError(t, err)
	require.True(t, res.Valid)

	assert.Equal(t, "admin", res.Identity.Role)
	assert.Equal(t, "tok", res.Identity.Token)
	assert.True(t, auth.HasIdentity())
	assert.Equal(t, "alice", auth.GetIdentity().ID)
}

func TestStaticAuthRejects(t *testing.T) {
	t.Parallel()

	auth := NewStaticAuth([]User{{ID: "alice", Password: "secret"}})

	auth.SetCredentials("alice", "wrong")
	res, err := auth.Authenticate()
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Messages)
	assert.False(t, auth.HasIdentity())

	auth.SetCredentials("nobody", "secret")
	res, err = auth.Authenticate()
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestStaticAuthNoCredentials(t *testing.T) {
	t.Parallel()

	auth := NewStaticAuth(nil)
	_, err := auth.Authenticate()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestStaticAuthLogout(t *testing.T) {
	t.Parallel()

	auth := NewStaticAuth([]User{{ID: "a", Password: "p"}})
	auth.SetCredentials("a", "p")
	_, err := auth.Authenticate()
	require.NoError(t, err)
	require.True(t, auth.HasIdentity())

	auth.ClearIdentity()
	assert.False(t, auth.HasIdentity())
	assert.Nil(t, auth.GetIdentity())
}
