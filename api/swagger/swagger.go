package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CampusHub LMS Sync API",
        "description": "Synchronization gateway for external learning management systems",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Connections", "description": "External LMS connection registry"},
        {"name": "Sync", "description": "Roster and grade synchronization"},
        {"name": "Roster", "description": "Synced roster data"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/connections": {
            "get": {
                "tags": ["Connections"],
                "summary": "List registered connections",
                "parameters": [
                    {"name": "institutionId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Connections"],
                "summary": "Register a provider connection",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterConnectionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation or unsupported provider", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Provider rejected credentials or unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}": {
            "get": {
                "tags": ["Connections"],
                "summary": "Get a connection",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Connections"],
                "summary": "Remove a connection",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Removed"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/sync": {
            "post": {
                "tags": ["Sync"],
                "summary": "Run a full synchronization pass",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "async", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "Sync result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Sync already in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/sync/last": {
            "get": {
                "tags": ["Sync"],
                "summary": "Last sync result",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No recorded result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/grades/export": {
            "post": {
                "tags": ["Sync"],
                "summary": "Push grades to the provider",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportGradesRequest"}}
                ],
                "responses": {
                    "200": {"description": "Exported"},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Provider error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/grades/{gradeId}": {
            "put": {
                "tags": ["Sync"],
                "summary": "Update a single grade on the provider",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "gradeId", "in": "path", "type": "string", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportGradeItem"}}
                ],
                "responses": {
                    "200": {"description": "Updated"},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Provider error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/courses/{courseId}/assignments": {
            "post": {
                "tags": ["Sync"],
                "summary": "Create an assignment in the external course",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Assignment"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Provider error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/users": {
            "get": {
                "tags": ["Roster"],
                "summary": "List synced users",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/courses": {
            "get": {
                "tags": ["Roster"],
                "summary": "List synced courses",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/roster/summary": {
            "get": {
                "tags": ["Roster"],
                "summary": "Roster counts and last sync time",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/connections/{id}/grades": {
            "get": {
                "tags": ["Roster"],
                "summary": "List synced grades",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterConnectionRequest": {
            "type": "object",
            "required": ["institution_id", "provider_type", "base_url", "credential_type"],
            "properties": {
                "institution_id": {"type": "string"},
                "provider_type": {"type": "string", "enum": ["moodle", "canvas", "blackboard"]},
                "base_url": {"type": "string"},
                "credential_type": {"type": "string", "enum": ["password", "api_key", "oauth_client", "bearer_token"]},
                "credentials": {"type": "object"},
                "timeout_seconds": {"type": "integer"},
                "max_retries": {"type": "integer"}
            }
        },
        "ExportGradesRequest": {
            "type": "object",
            "required": ["grades"],
            "properties": {
                "grades": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ExportGradeItem"}
                }
            }
        },
        "ExportGradeItem": {
            "type": "object",
            "required": ["user_id", "module_id", "max_score"],
            "properties": {
                "user_id": {"type": "string"},
                "module_id": {"type": "string"},
                "score": {"type": "number"},
                "max_score": {"type": "number"},
                "feedback": {"type": "string"}
            }
        },
        "Assignment": {
            "type": "object",
            "required": ["name", "max_score"],
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "max_score": {"type": "number"},
                "due_date": {"type": "string", "format": "date-time"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "per_page": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
