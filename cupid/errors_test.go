package cupid

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindClient},
		{http.StatusUnauthorized, KindBadAuthentication},
		{http.StatusForbidden, KindForbidden},
		{http.StatusNotFound, KindNotFound},
		{http.StatusMethodNotAllowed, KindClient},
		{http.StatusConflict, KindConflict},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusTooManyRequests, KindClient},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		matches []error
		misses  []error
	}{
		{
			name:    "bad authentication",
			status:  401,
			matches: []error{ErrBadAuthentication, ErrClient},
			misses:  []error{ErrForbidden, ErrServer, ErrNotFound},
		},
		{
			name:    "conflict",
			status:  409,
			matches: []error{ErrConflict, ErrClient},
			misses:  []error{ErrValidation, ErrServer},
		},
		{
			name:    "validation",
			status:  422,
			matches: []error{ErrValidation, ErrClient},
			misses:  []error{ErrConflict},
		},
		{
			name:    "generic client error",
			status:  418,
			matches: []error{ErrClient},
			misses:  []error{ErrNotFound, ErrServer},
		},
		{
			name:    "server error",
			status:  503,
			matches: []error{ErrServer},
			misses:  []error{ErrClient, ErrBadAuthentication},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", newAPIError(tt.status, []byte(`{"description":"x","message":"y"}`)))
			for _, target := range tt.matches {
				assert.ErrorIs(t, err, target)
			}
			for _, target := range tt.misses {
				assert.NotErrorIs(t, err, target)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 404, Description: "Not Found.", Message: "User not found."}
	assert.Equal(t, "cupid API error: status 404: Not Found (user not found)", err.Error())

	err = &APIError{Status: 500, Description: "Internal Server Error"}
	assert.Equal(t, "cupid API error: status 500: Internal Server Error", err.Error())
}

func TestNewAPIError(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		body := []byte(`{
			"status": 422,
			"description": "Validation error.",
			"message": "The request data was invalid.",
			"errors": [
				{"loc": ["body", "discriminator"], "msg": "bad", "type": "value_error"},
				{"loc": ["body", "items", 2], "msg": "worse", "type": "type_error"}
			]
		}`)
		apiErr := newAPIError(422, body)

		assert.Equal(t, KindValidation, apiErr.Kind)
		assert.Equal(t, 422, apiErr.Status)
		assert.Equal(t, "Validation error.", apiErr.Description)
		require.Len(t, apiErr.Problems, 2)
		assert.Equal(t, "body.discriminator", apiErr.Problems[0].Path())
		assert.Equal(t, "body.items.2", apiErr.Problems[1].Path())
		assert.Equal(t, "type_error", apiErr.Problems[1].Type)
	})

	t.Run("non-json body", func(t *testing.T) {
		apiErr := newAPIError(502, []byte("<html>bad gateway</html>\n"))

		assert.Equal(t, KindServer, apiErr.Kind)
		assert.Equal(t, "Bad Gateway", apiErr.Description)
		assert.Equal(t, "<html>bad gateway</html>", apiErr.Message)
		assert.Empty(t, apiErr.Problems)
	})

	t.Run("problems without description", func(t *testing.T) {
		apiErr := newAPIError(422, []byte(`{"errors":[{"loc":["body","name"],"msg":"bad","type":"value_error"}]}`))

		assert.Equal(t, KindValidation, apiErr.Kind)
		assert.Equal(t, "Unprocessable Entity", apiErr.Description)
		assert.Empty(t, apiErr.Message)
		require.Len(t, apiErr.Problems, 1)
		assert.Equal(t, "body.name", apiErr.Problems[0].Path())
		assert.Equal(t, "bad", apiErr.Problems[0].Msg)
	})

	t.Run("problems ignored outside validation", func(t *testing.T) {
		apiErr := newAPIError(409, []byte(`{"description":"Conflict.","message":"m","errors":[{"loc":["x"],"msg":"y","type":"z"}]}`))
		assert.True(t, apiErr.IsConflict())
		assert.Empty(t, apiErr.Problems)
	})
}

func TestAPIError_Helpers(t *testing.T) {
	assert.True(t, (&APIError{Kind: KindNotFound}).IsNotFound())
	assert.True(t, (&APIError{Kind: KindBadAuthentication}).IsUnauthorized())
	assert.False(t, (&APIError{Kind: KindForbidden}).IsUnauthorized())
}

func TestGraphInconsistencyError(t *testing.T) {
	err := fmt.Errorf("graph: %w", &GraphInconsistencyError{RelationshipID: 3, UserID: 9})

	assert.ErrorIs(t, err, ErrGraphInconsistent)
	var graphErr *GraphInconsistencyError
	require.True(t, errors.As(err, &graphErr))
	assert.Equal(t, int64(9), graphErr.UserID)
	assert.Contains(t, err.Error(), "relationship 3 references user 9")
}
