package api

import (
	"github.com/mattjoyce/labelgw/internal/driver"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the service. The
// label_type enum is generated from the label catalogue.
func buildOpenAPIDoc(version string, labels []driver.Label, authEnabled bool) map[string]any {
	identifiers := make([]string, 0, len(labels))
	for _, l := range labels {
		identifiers = append(identifiers, l.Identifier)
	}

	var security []any
	if authEnabled {
		security = []any{map[string]any{"BearerAuth": []string{}}}
	}

	errorResponse := func(desc string) map[string]any {
		return map[string]any{
			"description": desc,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/Error"},
				},
			},
		}
	}
	jsonResponse := func(desc, ref string) map[string]any {
		return map[string]any{
			"description": desc,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": "#/components/schemas/" + ref},
				},
			},
		}
	}
	protected := func(op map[string]any) map[string]any {
		if security != nil {
			op["security"] = security
			op["responses"].(map[string]any)["401"] = errorResponse("Missing or invalid API key")
		}
		return op
	}

	paths := map[string]any{
		"/": map[string]any{
			"get": map[string]any{
				"operationId": "serviceInfo",
				"summary":     "Service information",
				"responses":   map[string]any{"200": map[string]any{"description": "Service information"}},
			},
		},
		"/health": map[string]any{
			"get": map[string]any{
				"operationId": "health",
				"summary":     "Liveness check",
				"responses":   map[string]any{"200": map[string]any{"description": "Service is healthy"}},
			},
		},
		"/labels": map[string]any{
			"get": map[string]any{
				"operationId": "listLabels",
				"summary":     "Supported label sizes",
				"responses":   map[string]any{"200": map[string]any{"description": "Label catalogue"}},
			},
		},
		"/print": map[string]any{
			"post": protected(map[string]any{
				"operationId": "printLabel",
				"summary":     "Print a pre-rendered PNG label",
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{"$ref": "#/components/schemas/PrintRequest"},
						},
					},
				},
				"responses": map[string]any{
					"200": jsonResponse("Label printed or saved", "PrintResult"),
					"400": errorResponse("Malformed request body"),
					"413": errorResponse("Request body too large"),
					"500": errorResponse("Failed to print label"),
				},
			}),
		},
		"/jobs": map[string]any{
			"get": protected(map[string]any{
				"operationId": "listJobs",
				"summary":     "Recent print jobs, newest first",
				"parameters": []any{
					map[string]any{"name": "status", "in": "query", "schema": map[string]any{
						"type": "string",
						"enum": []string{"queued", "succeeded", "failed", "timed_out"},
					}},
					map[string]any{"name": "label", "in": "query", "schema": map[string]any{"type": "string"}},
					map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1}},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Job list"},
					"400": errorResponse("Invalid filter"),
					"404": errorResponse("Print journal is disabled"),
				},
			}),
		},
		"/jobs/{jobID}": map[string]any{
			"get": protected(map[string]any{
				"operationId": "getJob",
				"summary":     "A single print job",
				"parameters": []any{
					map[string]any{"name": "jobID", "in": "path", "required": true, "schema": map[string]any{"type": "string"}},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Job"},
					"404": errorResponse("Job not found"),
				},
			}),
		},
		"/events": map[string]any{
			"get": protected(map[string]any{
				"operationId": "streamEvents",
				"summary":     "Server-sent print events",
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Event stream",
						"content":     map[string]any{"text/event-stream": map[string]any{}},
					},
				},
			}),
		},
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Label Gateway",
			"version": version,
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": map[string]any{
				"PrintRequest": map[string]any{
					"type":     "object",
					"required": []string{"image_data", "label_type"},
					"properties": map[string]any{
						"image_data": map[string]any{
							"type":        "string",
							"description": "Base64-encoded PNG, optionally as a data: URL",
						},
						"label_type": map[string]any{
							"type": "string",
							"enum": identifiers,
						},
					},
				},
				"PrintResult": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status":   map[string]any{"type": "string"},
						"message":  map[string]any{"type": "string"},
						"dry_run":  map[string]any{"type": "boolean"},
						"filename": map[string]any{"type": "string"},
						"job_id":   map[string]any{"type": "string"},
						"digest":   map[string]any{"type": "string"},
					},
				},
				"Error": map[string]any{
					"type":       "object",
					"properties": map[string]any{"detail": map[string]any{"type": "string"}},
				},
			},
		},
	}
	if authEnabled {
		doc["components"].(map[string]any)["securitySchemes"] = map[string]any{
			"BearerAuth": map[string]any{
				"type":   "http",
				"scheme": "bearer",
			},
		}
	}
	return doc
}
