package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyProfilePatch(t *testing.T) {
	tests := []struct {
		name  string
		patch map[string]interface{}
		valid bool
	}{
		{"location only", map[string]interface{}{"location": "Berlin"}, true},
		{"seeking tags", map[string]interface{}{"seeking": []string{"design", "ops"}}, true},
		{"empty patch", map[string]interface{}{}, false},
		{"unknown field", map[string]interface{}{"upvotes": []string{"u1"}}, false},
		{"identity field", map[string]interface{}{"id": "x"}, false},
		{"wrong type", map[string]interface{}{"name": 42}, false},
		{"blank name", map[string]interface{}{"name": ""}, false},
		{"bad website", map[string]interface{}{"website": "ftp://x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CompanyProfilePatch.Validate(tt.patch)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, res.Summary())
		})
	}
}

func TestPartnerProfilePatchReportsField(t *testing.T) {
	res, err := PartnerProfilePatch.Validate(map[string]interface{}{"bio": "ok", "rank": 1})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Summary(), "rank")
}

func TestCompileRejectsBrokenSchema(t *testing.T) {
	_, err := Compile("broken", `{"type": 12`)
	assert.Error(t, err)
}
