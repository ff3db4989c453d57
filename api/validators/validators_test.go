package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
)

type payload struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		details string
	}{
		{name: "valid", body: `{"name":"Acme"}`},
		{name: "malformed", body: `{"name":`, wantErr: true, details: "error"},
		{name: "unknown field", body: `{"name":"Acme","extra":1}`, wantErr: true, details: "error"},
		{name: "missing required", body: `{"email":"a@acme.test"}`, wantErr: true, details: "name"},
		{name: "bad email", body: `{"name":"Acme","email":"nope"}`, wantErr: true, details: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dest payload
			err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "Acme", dest.Name)
				return
			}
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			switch details := typed.Details().(type) {
			case map[string]string:
				assert.Contains(t, details, tt.details)
			case map[string]any:
				assert.Contains(t, details, tt.details)
			default:
				t.Fatalf("unexpected details %T", details)
			}
		})
	}
}

func TestQueryID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/visits?tenantId=+t1+&routeId="+strings.Repeat("x", 200), nil)

	value, err := RequiredQueryID(r, "tenantId")
	require.NoError(t, err)
	assert.Equal(t, "t1", value)

	_, err = QueryID(r, "routeId")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	value, err = QueryID(r, "salesRepId")
	require.NoError(t, err)
	assert.Empty(t, value)

	_, err = RequiredQueryID(r, "salesRepId")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
