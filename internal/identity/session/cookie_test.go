package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTokenAbsentCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/visitor", nil)
	assert.Equal(t, "", ReadToken(req))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteToken(rec, "tok-123", CookieOptions{})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, "tok-123", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 604800, c.MaxAge)
	assert.True(t, c.HttpOnly)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.AddCookie(c)
	assert.Equal(t, "tok-123", ReadToken(req))
}
