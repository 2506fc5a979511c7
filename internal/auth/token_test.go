package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-docservices/internal/models"
)

func testUser() models.User {
	return models.User{
		ID:       "user-1",
		Username: "ramesh",
		Role:     models.RoleUser,
	}
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.ID)
	assert.Equal(t, models.RoleUser, principal.Role)
	assert.False(t, principal.IsAdmin())
}

func TestVerify_AdminRole(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	u := testUser()
	u.Role = models.RoleAdmin
	token, err := issuer.Issue(u)
	require.NoError(t, err)

	principal, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue(testUser())
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerify_ExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestVerify_EmptyAndGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	_, err := issuer.Verify("")
	assert.Error(t, err)

	_, err = issuer.Verify("not.a.jwt")
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	token, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestExtractTokenFromRequest_Missing(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)

	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)
}

func TestExtractTokenFromRequest_BadFormat(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hashed)

	assert.True(t, CheckPassword(hashed, "s3cret-pass"))
	assert.False(t, CheckPassword(hashed, "wrong"))
}
