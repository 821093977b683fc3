// Package schema holds the per-step validation contracts of the application
// wizard. A step number enters the completed set only after its data passes
// the schema registered here.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"advisory-apply/internal/models"
)

// ValidationError reports which step failed and every schema problem found.
type ValidationError struct {
	Step     int
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %d validation failed: %s", e.Step, strings.Join(e.Problems, "; "))
}

// Registry compiles and holds the nine step schemas.
type Registry struct {
	schemas map[int]*gojsonschema.Schema
}

// NewRegistry compiles the default step contracts.
func NewRegistry() (*Registry, error) {
	compiled := make(map[int]*gojsonschema.Schema, len(stepDefinitions))
	for step, def := range stepDefinitions {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
		if err != nil {
			return nil, fmt.Errorf("compile step %d schema: %w", step, err)
		}
		compiled[step] = s
	}
	for step := models.FirstStep; step <= models.LastStep; step++ {
		if _, ok := compiled[step]; !ok {
			return nil, fmt.Errorf("no schema defined for step %d", step)
		}
	}
	return &Registry{schemas: compiled}, nil
}

// StepCount returns the number of wizard steps.
func (r *Registry) StepCount() int {
	return len(r.schemas)
}

// Validate checks one step's data against its contract.
func (r *Registry) Validate(step int, data map[string]interface{}) error {
	s, ok := r.schemas[step]
	if !ok {
		return fmt.Errorf("no schema registered for step %d", step)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("step %d validation error: %w", step, err)
	}
	if !result.Valid() {
		problems := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			problems[i] = desc.String()
		}
		return &ValidationError{Step: step, Problems: problems}
	}
	return nil
}

// stepDefinitions are the canonical shapes of the nine application steps.
// Steps 1-2 feed the applicant identity projections.
var stepDefinitions = map[int]map[string]interface{}{
	1: { // personal details
		"type":     "object",
		"required": []string{"firstName", "lastName", "dateOfBirth"},
		"properties": map[string]interface{}{
			"firstName":   map[string]interface{}{"type": "string", "minLength": 1},
			"lastName":    map[string]interface{}{"type": "string", "minLength": 1},
			"dateOfBirth": map[string]interface{}{"type": "string", "format": "date"},
			"gender":      map[string]interface{}{"type": "string"},
		},
	},
	2: { // contact details
		"type":     "object",
		"required": []string{"email", "phone"},
		"properties": map[string]interface{}{
			"email":      map[string]interface{}{"type": "string", "format": "email"},
			"phone":      map[string]interface{}{"type": "string", "minLength": 7},
			"address":    map[string]interface{}{"type": "string"},
			"city":       map[string]interface{}{"type": "string"},
			"postalCode": map[string]interface{}{"type": "string"},
		},
	},
	3: { // coverage selection
		"type":     "object",
		"required": []string{"coverageAmount", "termYears"},
		"properties": map[string]interface{}{
			"coverageAmount": map[string]interface{}{"type": "number", "minimum": 10000},
			"termYears":      map[string]interface{}{"type": "integer", "minimum": 5, "maximum": 40},
			"riders":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	},
	4: { // health history
		"type":     "object",
		"required": []string{"heightCm", "weightKg"},
		"properties": map[string]interface{}{
			"heightCm":   map[string]interface{}{"type": "number", "minimum": 50},
			"weightKg":   map[string]interface{}{"type": "number", "minimum": 20},
			"conditions": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"medications": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	},
	5: { // lifestyle
		"type":     "object",
		"required": []string{"smoker"},
		"properties": map[string]interface{}{
			"smoker":          map[string]interface{}{"type": "boolean"},
			"alcoholPerWeek":  map[string]interface{}{"type": "integer", "minimum": 0},
			"hazardousSports": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"occupation":      map[string]interface{}{"type": "string"},
		},
	},
	6: { // beneficiaries
		"type":     "object",
		"required": []string{"beneficiaries"},
		"properties": map[string]interface{}{
			"beneficiaries": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"name", "relationship", "sharePercent"},
					"properties": map[string]interface{}{
						"name":         map[string]interface{}{"type": "string", "minLength": 1},
						"relationship": map[string]interface{}{"type": "string"},
						"sharePercent": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
					},
				},
			},
		},
	},
	7: { // financial details
		"type":     "object",
		"required": []string{"annualIncome"},
		"properties": map[string]interface{}{
			"annualIncome":     map[string]interface{}{"type": "number", "minimum": 0},
			"existingCoverage": map[string]interface{}{"type": "number", "minimum": 0},
			"employmentStatus": map[string]interface{}{"type": "string"},
		},
	},
	8: { // disclosures
		"type":     "object",
		"required": []string{"declinedBefore", "consentToContact"},
		"properties": map[string]interface{}{
			"declinedBefore":   map[string]interface{}{"type": "boolean"},
			"consentToContact": map[string]interface{}{"type": "boolean"},
			"notes":            map[string]interface{}{"type": "string"},
		},
	},
	9: { // review and declaration
		"type":     "object",
		"required": []string{"declarationAccepted"},
		"properties": map[string]interface{}{
			"declarationAccepted": map[string]interface{}{"type": "boolean", "enum": []interface{}{true}},
			"signature":           map[string]interface{}{"type": "string"},
		},
	},
}
