package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Assignment Tracker API",
        "description": "Assignment scheduling, fan-out and per-applicant lifecycle tracking.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Assignments", "description": "Assignment definitions, roster and gradebook"},
        {"name": "Tracks", "description": "Per-applicant lifecycle: accept, submit, evaluate"},
        {"name": "Uploads", "description": "Submission file uploads"}
    ],
    "paths": {
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments",
                "parameters": [
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Schedule an assignment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAssignmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "207": {"description": "Created; some applicants could not be assigned (meta.failedApplicantIds)", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Get assignment definition",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/tracks": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Evaluation roster of an assignment",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/gradebook": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Download an assignment gradebook",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Gradebook file", "schema": {"type": "file"}}
                }
            }
        },
        "/applicants/{applicantId}/assignments": {
            "get": {
                "tags": ["Tracks"],
                "summary": "Applicant assignment dashboard",
                "parameters": [{"name": "applicantId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applicants/{applicantId}/assignments/{assignmentId}": {
            "get": {
                "tags": ["Tracks"],
                "summary": "One applicant entry with its projected status",
                "parameters": [
                    {"name": "applicantId", "in": "path", "required": true, "type": "string"},
                    {"name": "assignmentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applicants/{applicantId}/assignments/{assignmentId}/accept": {
            "post": {
                "tags": ["Tracks"],
                "summary": "Accept an assignment",
                "parameters": [
                    {"name": "applicantId", "in": "path", "required": true, "type": "string"},
                    {"name": "assignmentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applicants/{applicantId}/assignments/{assignmentId}/submit": {
            "post": {
                "tags": ["Tracks"],
                "summary": "Submit an accepted assignment",
                "parameters": [
                    {"name": "applicantId", "in": "path", "required": true, "type": "string"},
                    {"name": "assignmentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitAssignmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applicants/{applicantId}/assignments/{assignmentId}/evaluate": {
            "post": {
                "tags": ["Tracks"],
                "summary": "Grade a submitted assignment",
                "parameters": [
                    {"name": "applicantId", "in": "path", "required": true, "type": "string"},
                    {"name": "assignmentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EvaluateAssignmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Upload submission files",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "files", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Payload too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{token}": {
            "get": {
                "tags": ["Uploads"],
                "summary": "Download an uploaded file",
                "security": [],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Link expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateAssignmentRequest": {
            "type": "object",
            "required": ["title", "subject", "endDate"],
            "properties": {
                "title": {"type": "string"},
                "subject": {"type": "string", "enum": ["Data Science And Analytics", "Cybersecurity", "Artificial Intelligence"]},
                "note": {"type": "string"},
                "link": {"type": "string"},
                "attachments": {"type": "array", "items": {"type": "string"}},
                "startDate": {"type": "string", "format": "date-time"},
                "endDate": {"type": "string", "format": "date-time"},
                "group": {"type": "boolean"},
                "groupTag": {"type": "string"},
                "applicantIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "SubmitAssignmentRequest": {
            "type": "object",
            "properties": {
                "fileUrl": {"type": "string"},
                "fileUrls": {"type": "array", "items": {"type": "string"}},
                "link": {"type": "string"},
                "note": {"type": "string", "maxLength": 2048}
            }
        },
        "EvaluateAssignmentRequest": {
            "type": "object",
            "required": ["score"],
            "properties": {
                "score": {"type": "number"},
                "remarks": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
