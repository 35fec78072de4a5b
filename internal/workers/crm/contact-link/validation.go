package contactlink

import "crm-sync/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"contacts"},
		Properties: map[string]validation.Property{
			"contacts": {
				Type:        "array",
				Description: "Contacts to link to same-named accounts",
				MinItems:    intPtr(1),
				Items: &validation.Property{
					Type:     "object",
					Required: []string{"lastName"},
					Properties: map[string]validation.Property{
						"firstName": {
							Type:      "string",
							MaxLength: intPtr(100),
						},
						"lastName": {
							Type:      "string",
							MinLength: intPtr(1),
							MaxLength: intPtr(100),
						},
					},
				},
			},
		},
		AdditionalProperties: false,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"success": {
				Type:        "boolean",
				Description: "Whether the linking completed",
			},
			"message": {
				Type:        "string",
				Description: "Result message",
			},
			"linked": {
				Type:        "integer",
				Description: "Contacts persisted with an account association",
			},
			"skipped": {
				Type:        "array",
				Description: "Last names dropped because no account could be resolved",
			},
			"accountIds": {
				Type:        "object",
				Description: "Contact last name to account identity",
			},
		},
		AdditionalProperties: false,
	}
}

func intPtr(i int) *int {
	return &i
}
