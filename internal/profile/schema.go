package profile

import "github.com/abhisek/autodidact/internal/llm"

// updatesSchema describes the structured reply for one profile scope.
func updatesSchema(scope Scope) *llm.Schema {
	fields := make([]any, 0)
	for _, f := range FieldNames(scope) {
		fields = append(fields, f)
	}
	return &llm.Schema{
		Name:        "profile-" + string(scope) + "-updates",
		Description: "Evidence-backed updates to a learner profile",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"no_change": map[string]any{
					"type":        "boolean",
					"description": "True when the transcript reveals nothing new about the learner",
				},
				"updates": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"field": map[string]any{
								"type":        "string",
								"enum":        fields,
								"description": "The profile field to update",
							},
							"value": map[string]any{
								"type":        "string",
								"description": "The new observation, one or two sentences",
							},
							"confidence": map[string]any{
								"type":        "number",
								"minimum":     0,
								"maximum":     1,
								"description": "How certain the observation is, from 0 to 1",
							},
							"evidence": map[string]any{
								"type":        "string",
								"description": "What the learner said or did in the transcript that supports the value",
							},
						},
						"required":             []any{"field", "value", "confidence", "evidence"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []any{"no_change", "updates"},
			"additionalProperties": false,
		},
	}
}
