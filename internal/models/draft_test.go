// internal/models/draft_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityFromForm(t *testing.T) {
	form := FormData{
		1: {"firstName": "Jane", "lastName": "Doe"},
		2: {"email": "jane@example.com", "phone": "5551234567"},
	}

	id := IdentityFromForm(form)

	assert.Equal(t, "Jane Doe", id.Name)
	assert.Equal(t, "jane@example.com", id.Email)
	assert.Equal(t, "5551234567", id.Phone)
}

func TestIdentityFromForm_PartialData(t *testing.T) {
	tests := []struct {
		name string
		form FormData
		want ApplicantIdentity
	}{
		{"empty form", FormData{}, ApplicantIdentity{}},
		{"name only", FormData{1: {"firstName": "Jane", "lastName": "Doe"}}, ApplicantIdentity{Name: "Jane Doe"}},
		{"first name only", FormData{1: {"firstName": "Jane"}}, ApplicantIdentity{Name: "Jane"}},
		{"non-string fields ignored", FormData{1: {"firstName": 42}, 2: {"email": true}}, ApplicantIdentity{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IdentityFromForm(tt.form))
		})
	}
}

func TestFormData_CloneIsDetached(t *testing.T) {
	original := FormData{1: {"firstName": "Jane"}}

	clone := original.Clone()
	clone[1]["firstName"] = "Changed"
	clone[2] = map[string]interface{}{"email": "new@example.com"}

	assert.Equal(t, "Jane", original[1]["firstName"])
	_, has := original[2]
	assert.False(t, has)
}
