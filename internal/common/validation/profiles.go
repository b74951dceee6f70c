package validation

const stringArray = `{"type": "array", "items": {"type": "string", "maxLength": 80}, "maxItems": 50}`

// CompanyProfilePatch accepts the editable company profile fields only.
var CompanyProfilePatch = MustCompile("company-profile-patch", `{
	"type": "object",
	"additionalProperties": false,
	"minProperties": 1,
	"properties": {
		"name":        {"type": "string", "minLength": 1, "maxLength": 120},
		"tagline":     {"type": "string", "maxLength": 200},
		"description": {"type": "string", "maxLength": 5000},
		"industry":    {"type": "string", "maxLength": 120},
		"location":    {"type": "string", "maxLength": 120},
		"website":     {"type": "string", "maxLength": 300, "pattern": "^(https?://.*)?$"},
		"logoUrl":     {"type": "string", "maxLength": 1000},
		"seeking":     `+stringArray+`
	}
}`)

// PartnerProfilePatch accepts the editable partner profile fields only.
var PartnerProfilePatch = MustCompile("partner-profile-patch", `{
	"type": "object",
	"additionalProperties": false,
	"minProperties": 1,
	"properties": {
		"name":      {"type": "string", "minLength": 1, "maxLength": 120},
		"headline":  {"type": "string", "maxLength": 200},
		"bio":       {"type": "string", "maxLength": 5000},
		"location":  {"type": "string", "maxLength": 120},
		"skills":    `+stringArray+`,
		"avatarUrl": {"type": "string", "maxLength": 1000}
	}
}`)
