package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreErrorStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"denied":      {&docstore.Error{Code: docstore.CodePermissionDenied, Path: "books/b1"}, http.StatusForbidden},
		"participant": {fmt.Errorf("send: %w", repositories.ErrNotParticipant), http.StatusForbidden},
		"missing":     {fmt.Errorf("get: %w", docstore.ErrNotFound), http.StatusNotFound},
		"exists":      {docstore.ErrAlreadyExists, http.StatusConflict},
		"self":        {toggle.ErrSelf, http.StatusBadRequest},
		"transition":  {repositories.ErrInvalidTransition, http.StatusBadRequest},
		"http":        {echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		"other":       {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var he *echo.HTTPError
			require.True(t, errors.As(storeError(tc.err), &he))
			assert.Equal(t, tc.want, he.Code)
		})
	}
	assert.NoError(t, storeError(nil))
}

func TestLimitParam(t *testing.T) {
	e := echo.New()
	for query, want := range map[string]int{
		"":           20,
		"?limit=5":   5,
		"?limit=0":   20,
		"?limit=abc": 20,
		"?limit=500": 100,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+query, nil), httptest.NewRecorder())
		assert.Equal(t, want, limitParam(c, 20, 100), query)
	}
}

func TestCurrentIdentityRequiresSession(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := currentIdentity(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestQueryDescriptor(t *testing.T) {
	d := QueryDescriptor{
		Path:    "books",
		Where:   []FilterDescriptor{{Field: "status", Op: "==", Value: "published"}},
		OrderBy: []OrderDescriptor{{Field: "createdAt", Desc: true}},
		Limit:   10,
	}
	want := docstore.Collection("books").
		Where("status", docstore.OpEqual, "published").
		OrderBy("createdAt", true).
		WithLimit(10)
	assert.Equal(t, want.Key(), d.Query().Key())
	assert.NoError(t, d.Query().Validate())

	d.Where[0].Op = "~="
	assert.Error(t, d.Query().Validate())
}

func TestToggleTargetsRejectMalformedIDs(t *testing.T) {
	e := echo.New()
	resolve := func(fn kindFor, names []string, values ...string) (toggle.Kind, string, error) {
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
		c.SetParamNames(names...)
		c.SetParamValues(values...)
		return fn(c)
	}

	kind, target, err := resolve(bookLike, []string{"id"}, "b1")
	require.NoError(t, err)
	assert.Equal(t, toggle.BookLike.Name, kind.Name)
	assert.Equal(t, "b1", target)

	kind, target, err = resolve(commentLike("reels"), []string{"id", "comment_id"}, "r1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "reels/r1/comments/c1/likes/u1", kind.Membership("u1", target))

	for _, bad := range []string{"", "..", "a%2Fb"} {
		_, _, err = resolve(follow, []string{"id"}, bad)
		var he *echo.HTTPError
		require.True(t, errors.As(err, &he), bad)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	}
	_, _, err = resolve(commentLike("books"), []string{"id", "comment_id"}, "b1", "")
	assert.Error(t, err)
}
