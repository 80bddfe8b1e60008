package orchestrator

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"teklif/internal/types"
)

// Every branch shares the identity core; branch schemas layer the fields
// the portals' forms actually require on top of it.
const identityProperties = `
	"national_id": {"type": "string", "pattern": "^[0-9]{11}$"},
	"birth_date":  {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
	"email":       {"type": "string", "format": "email"},
	"phone":       {"type": "string", "minLength": 10}
`

var branchSchemas = map[types.Branch]string{
	types.BranchTrafik: `{
		"type": "object",
		"properties": {` + identityProperties + `,
			"plate":             {"type": "string", "minLength": 5},
			"registration_code": {"type": "string", "minLength": 3},
			"vehicle_make":      {"type": "string"},
			"vehicle_model":     {"type": "string"},
			"model_year":        {"type": "string", "pattern": "^[0-9]{4}$"}
		},
		"required": ["national_id", "birth_date", "plate", "registration_code"]
	}`,
	types.BranchKasko: `{
		"type": "object",
		"properties": {` + identityProperties + `,
			"plate":             {"type": "string", "minLength": 5},
			"registration_code": {"type": "string", "minLength": 3},
			"vehicle_make":      {"type": "string"},
			"vehicle_model":     {"type": "string"},
			"model_year":        {"type": "string", "pattern": "^[0-9]{4}$"},
			"usage_type":        {"type": "string"}
		},
		"required": ["national_id", "birth_date", "plate", "registration_code"]
	}`,
	types.BranchDask: `{
		"type": "object",
		"properties": {` + identityProperties + `,
			"address_code": {"type": "string", "pattern": "^[0-9]{10}$"},
			"policy_no":    {"type": "string"},
			"province":     {"type": "string"},
			"district":     {"type": "string"}
		},
		"required": ["national_id", "birth_date"],
		"anyOf": [
			{"required": ["address_code"]},
			{"required": ["policy_no"]}
		]
	}`,
	types.BranchHealth: `{
		"type": "object",
		"properties": {` + identityProperties + `,
			"occupation":      {"type": "string"},
			"coverage_group":  {"type": "string"},
			"coverage_amount": {"type": "string"},
			"height":          {"type": "string"},
			"weight":          {"type": "string"}
		},
		"required": ["national_id", "birth_date", "phone"]
	}`,
	types.BranchTravel: `{
		"type": "object",
		"properties": {` + identityProperties + `,
			"destination": {"type": "string", "minLength": 2},
			"start_date":  {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
			"end_date":    {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
		},
		"required": ["national_id", "birth_date", "destination", "start_date", "end_date"]
	}`,
}

var compiledSchemas = func() map[types.Branch]*jsonschema.Schema {
	out := make(map[types.Branch]*jsonschema.Schema, len(branchSchemas))
	for branch, raw := range branchSchemas {
		compiler := jsonschema.NewCompiler()
		// format is annotation-only by default; the email keyword must
		// actually reject garbage
		compiler.AssertFormat = true
		name := strings.ToLower(string(branch)) + ".json"
		if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("bad %s customer schema: %v", branch, err))
		}
		out[branch] = compiler.MustCompile(name)
	}
	return out
}()

// ValidateCustomerData checks the branch payload before any session is
// scheduled, so malformed requests fail fast instead of mid-form.
func ValidateCustomerData(branch types.Branch, data map[string]any) error {
	schema, ok := compiledSchemas[branch]
	if !ok {
		return fmt.Errorf("no customer schema for branch %q", branch)
	}
	if data == nil {
		data = map[string]any{}
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("customer data invalid for %s: %w", branch, err)
	}
	return nil
}
