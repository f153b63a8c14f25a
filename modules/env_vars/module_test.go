package env_vars

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func schema(t *testing.T) *node.Schema {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	s, err := r.Lookup("env.Variable")
	require.NoError(t, err)
	return s
}

func TestVariable(t *testing.T) {
	t.Setenv("DETFLOW_TEST_STORE", "/data/run7.db")

	testCases := []struct {
		name    string
		consts  map[string]cty.Value
		want    string
		wantErr error
	}{
		{
			name:   "set",
			consts: map[string]cty.Value{"name": cty.StringVal("DETFLOW_TEST_STORE")},
			want:   "/data/run7.db",
		},
		{
			name:   "set wins over fallback",
			consts: map[string]cty.Value{"name": cty.StringVal("DETFLOW_TEST_STORE"), "fallback": cty.StringVal("x")},
			want:   "/data/run7.db",
		},
		{
			name:   "unset with fallback",
			consts: map[string]cty.Value{"name": cty.StringVal("DETFLOW_TEST_UNSET"), "fallback": cty.StringVal("")},
			want:   "",
		},
		{
			name:    "unset",
			consts:  map[string]cty.Value{"name": cty.StringVal("DETFLOW_TEST_UNSET")},
			wantErr: apperr.ErrMissingInput,
		},
		{name: "no name", wantErr: apperr.ErrInvalidConstant},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := testutil.RunNode(t, context.Background(), schema(t), nil, tc.consts, nil)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, out["value"])
		})
	}
}
