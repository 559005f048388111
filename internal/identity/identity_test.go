package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	touched []string
}

func (r *recorder) Touch(userID string) {
	r.touched = append(r.touched, userID)
}

func TestRequireUser(t *testing.T) {
	rec := &recorder{}
	var seen string
	handler := RequireUser(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, rec.touched)
	})

	t.Run("user present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(HeaderUserID, " user-42 ")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "user-42", seen)
		assert.Equal(t, []string{"user-42"}, rec.touched)
	})
}

func TestUserID_Empty(t *testing.T) {
	_, ok := UserID(WithUserID(httptest.NewRequest("GET", "/", nil).Context(), ""))
	assert.False(t, ok)
}
