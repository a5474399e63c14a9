package fakeapi

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	a, b := newSecret(), newSecret()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestParseToken(t *testing.T) {
	s := New(zerolog.Nop())
	s.apps[7] = &app{id: 7, name: "test", secret: newSecret()}
	token := encodeToken(tokenTypeApp, 7, s.apps[7].secret)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "valid", header: "Bearer " + token, want: true},
		{name: "missing bearer", header: token},
		{name: "other secret", header: "Bearer " + encodeToken(tokenTypeApp, 7, newSecret())},
		{name: "unknown app", header: "Bearer " + encodeToken(tokenTypeApp, 8, s.apps[7].secret)},
		{name: "session type", header: "Bearer " + encodeToken(tokenTypeSession, 7, s.apps[7].secret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := s.parseToken(tt.header)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				require.NotNil(t, p.app)
				assert.Equal(t, int64(7), p.app.id)
			}
		})
	}
}
