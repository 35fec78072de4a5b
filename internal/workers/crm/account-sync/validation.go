package accountsync

import "crm-sync/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"accountNames"},
		Properties: map[string]validation.Property{
			"accountNames": {
				Type:        "array",
				Description: "Natural keys of the accounts to find or create",
				MinItems:    intPtr(0),
				Items: &validation.Property{
					Type:      "string",
					MinLength: intPtr(1),
					MaxLength: intPtr(255),
				},
			},
			"onCreate": {
				Type:        "object",
				Description: "Field defaults applied to newly created accounts",
			},
			"onExisting": {
				Type:        "object",
				Description: "Field patch applied to matched accounts",
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
				Description: "Whether the sync completed",
			},
			"message": {
				Type:        "string",
				Description: "Result message",
			},
			"created": {
				Type:        "integer",
				Description: "Accounts created during the sync",
			},
			"matched": {
				Type:        "integer",
				Description: "Accounts matched by natural key",
			},
			"recordIds": {
				Type:        "array",
				Description: "Store identities of the synced accounts",
			},
			"duplicateKeys": {
				Type:        "array",
				Description: "Names that matched more than one existing account",
			},
		},
		AdditionalProperties: false,
	}
}

func intPtr(i int) *int {
	return &i
}
