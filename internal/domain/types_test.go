package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   PoolConfig
		field string
	}{
		{"defaults", DefaultPoolConfig(), ""},
		{"min equals max", PoolConfig{MaxConnections: 3, MinConnections: 3, SelectionTimeout: time.Second}, ""},
		{"zero min", PoolConfig{MaxConnections: 1, SelectionTimeout: time.Second}, ""},
		{"min above max", PoolConfig{MaxConnections: 2, MinConnections: 5, SelectionTimeout: time.Second}, "min_connections"},
		{"negative min", PoolConfig{MaxConnections: 2, MinConnections: -1, SelectionTimeout: time.Second}, "min_connections"},
		{"zero max", PoolConfig{SelectionTimeout: time.Second}, "max_connections"},
		{"zero timeout", PoolConfig{MaxConnections: 2}, "selection_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestUserCreate_Validate(t *testing.T) {
	assert.NoError(t, UserCreate{Name: "Ada", Email: "ada@example.com", Age: 36}.Validate())

	err := UserCreate{Name: "A", Email: "nope", Age: 0}.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 3)
	assert.Contains(t, ve.Fields, "name")
	assert.Contains(t, ve.Fields, "email")
	assert.Contains(t, ve.Fields, "age")
	assert.Contains(t, err.Error(), "age: should be between 1 and 120")

	err = UserCreate{Name: "Ada", Age: 121}.Validate()
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "field required", ve.Fields["email"])

	err = UserCreate{Age: 30}.Validate()
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"name": "field required", "email": "field required"}, ve.Fields)

	err = UserCreate{Name: "A", Email: "a@example.com", Age: 30}.Validate()
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "should have at least 2 characters", ve.Fields["name"])
}

func TestUserUpdate(t *testing.T) {
	assert.True(t, UserUpdate{}.Empty())
	assert.NoError(t, UserUpdate{}.Validate())

	name, age := "Grace", 85
	u := UserUpdate{Name: &name, Age: &age}
	assert.False(t, u.Empty())
	assert.NoError(t, u.Validate())
	assert.Equal(t, map[string]any{"name": "Grace", "age": 85}, u.Fields())

	bad := 0
	var ve *ValidationError
	require.ErrorAs(t, UserUpdate{Age: &bad}.Validate(), &ve)
	assert.Equal(t, []string{"age"}, keys(ve.Fields))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
