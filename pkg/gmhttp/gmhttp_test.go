package gmhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slgserver/pkg/apperror"
	"slgserver/pkg/passhash"
)

type playerController struct{}

func (playerController) PathPrefix() string { return "/gm/players" }
func (playerController) Routes() []Route {
	return []Route{
		{
			Method: http.MethodGet, Path: "/kick", Description: "kick a player",
			Handler: func(c *Context) (any, error) {
				id := c.QueryInt("id", 0)
				if id == 0 {
					return nil, apperror.New(apperror.CodeParamInvalid, "id is required")
				}
				return map[string]any{"kicked": id}, nil
			},
		},
	}
}

func TestServerWrapsSuccessInEnvelope(t *testing.T) {
	s := New()
	s.Register(playerController{})

	req := httptest.NewRequest(http.MethodGet, "/gm/players/kick?id=5", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "OK", env.Code)
}

func TestServerMapsHandlerErrorToStatus(t *testing.T) {
	s := New()
	s.Register(playerController{})

	req := httptest.NewRequest(http.MethodGet, "/gm/players/kick", nil) // missing id
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, string(apperror.CodeParamInvalid), env.Code)
}

func TestServerRejectsWrongMethod(t *testing.T) {
	s := New()
	s.Register(playerController{})

	req := httptest.NewRequest(http.MethodPost, "/gm/players/kick?id=1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIntrospectListsRoutes(t *testing.T) {
	s := New()
	s.Register(playerController{})

	req := httptest.NewRequest(http.MethodGet, "/_introspect", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, _ := json.Marshal(env.Data)
	assert.Contains(t, string(data), "/gm/players/kick")
}

func TestRequireRoleRejectsMissingToken(t *testing.T) {
	mgr := passhash.NewJWTManager(nil)
	s := New().WithAuth(RequireRole(mgr, "admin"))
	s.Register(playerController{})

	req := httptest.NewRequest(http.MethodGet, "/gm/players/kick?id=1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRoleAcceptsValidAdminToken(t *testing.T) {
	mgr := passhash.NewJWTManager(nil)
	s := New().WithAuth(RequireRole(mgr, "admin"))
	s.Register(playerController{})

	token, err := mgr.GenerateAccessToken("u1", "gm1", "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/gm/players/kick?id=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	mgr := passhash.NewJWTManager(nil)
	s := New().WithAuth(RequireRole(mgr, "admin"))
	s.Register(playerController{})

	token, err := mgr.GenerateAccessToken("u1", "player1", "player")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/gm/players/kick?id=1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
