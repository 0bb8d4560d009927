package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/rostersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validationInput struct {
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"omitempty,email"`
	Name     string `json:"name" binding:"required,max=10"`
}

func newValidationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req validationInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleValidationError(t *testing.T) {
	router := newValidationRouter()

	t.Run("lists every rejected field by its JSON name", func(t *testing.T) {
		w := postJSON(router, `{"username": "bad name!", "email": "invalid", "name": "far too long a name"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)

		fields := map[string]string{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = d.Message
		}
		assert.Contains(t, fields["username"], "letters, digits")
		assert.Equal(t, "Invalid email format", fields["email"])
		assert.Equal(t, "Must be at most 10 characters", fields["name"])
	})

	t.Run("malformed JSON", func(t *testing.T) {
		w := postJSON(router, `{"username":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeInvalidJSON)
	})

	t.Run("accepts valid input", func(t *testing.T) {
		w := postJSON(router, `{"username": " JDoe ", "name": "Jane"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestUsernameTag(t *testing.T) {
	router := newValidationRouter()

	tests := []struct {
		username string
		valid    bool
	}{
		{"jdoe", true},
		{"j.doe-2_x", true},
		{"JDOE", true},
		{"", false},
		{".jdoe", false},
		{"jane doe", false},
		{"josé", false},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			w := postJSON(router, `{"username": "`+tt.username+`", "name": "x"}`)
			if tt.valid {
				assert.Equal(t, http.StatusOK, w.Code)
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}
