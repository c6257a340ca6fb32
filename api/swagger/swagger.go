package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LoanDocs API",
        "description": "Document lifecycle and supersession engine for loan origination",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Documents", "description": "Document upload, activation and review"},
        {"name": "History", "description": "Supersession chains, timelines and point-in-time queries"}
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
                    "503": {"description": "Database unavailable"}
                }
            }
        },
        "/documents": {
            "post": {
                "tags": ["Documents"],
                "summary": "Upload a document version",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "owner_kind", "in": "formData", "type": "string", "required": true},
                    {"name": "owner_id", "in": "formData", "type": "string", "required": true},
                    {"name": "type", "in": "formData", "type": "string", "required": true},
                    {"name": "metadata", "in": "formData", "type": "string"},
                    {"name": "consumer_kind", "in": "formData", "type": "string"},
                    {"name": "consumer_id", "in": "formData", "type": "string"},
                    {"name": "file", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large"},
                    "415": {"description": "Unsupported media type"}
                }
            }
        },
        "/documents/active": {
            "get": {
                "tags": ["Documents"],
                "summary": "List active documents for an owner",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "owner_kind", "in": "query", "type": "string", "required": true},
                    {"name": "owner_id", "in": "query", "type": "string", "required": true},
                    {"name": "type", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/valid-at": {
            "get": {
                "tags": ["History"],
                "summary": "Document version valid at a point in time",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "owner_kind", "in": "query", "type": "string", "required": true},
                    {"name": "owner_id", "in": "query", "type": "string", "required": true},
                    {"name": "type", "in": "query", "type": "string", "required": true},
                    {"name": "at", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No version valid at that instant"}
                }
            }
        },
        "/documents/timeline": {
            "get": {
                "tags": ["History"],
                "summary": "Version timeline for an owner and type",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "owner_kind", "in": "query", "type": "string", "required": true},
                    {"name": "owner_id", "in": "query", "type": "string", "required": true},
                    {"name": "type", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/timeline/export": {
            "get": {
                "tags": ["History"],
                "summary": "Export a version timeline as CSV or PDF",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "owner_kind", "in": "query", "type": "string", "required": true},
                    {"name": "owner_id", "in": "query", "type": "string", "required": true},
                    {"name": "type", "in": "query", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Rendered file"}
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Get one document",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/documents/{id}/attach": {
            "post": {
                "tags": ["Documents"],
                "summary": "Attach a document to a consumer",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttachRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Document superseded or activation conflict"}
                }
            }
        },
        "/documents/{id}/review": {
            "post": {
                "tags": ["Documents"],
                "summary": "Apply a staff review decision",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid status transition"}
                }
            }
        },
        "/documents/{id}/chain": {
            "get": {
                "tags": ["History"],
                "summary": "Supersession chain for a document",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/consumers": {
            "get": {
                "tags": ["History"],
                "summary": "Consumers attached to a document",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/audit": {
            "get": {
                "tags": ["History"],
                "summary": "Audit entries recorded for a document",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "limit", "in": "query", "type": "integer", "required": false}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/consumers/documents": {
            "get": {
                "tags": ["History"],
                "summary": "Documents a consumer currently holds relations to",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "consumer_kind", "in": "query", "type": "string", "required": true},
                    {"name": "consumer_id", "in": "query", "type": "string", "required": true},
                    {"name": "purpose", "in": "query", "type": "string", "required": false}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/{id}/download-url": {
            "get": {
                "tags": ["Documents"],
                "summary": "Generate a signed download link",
                "parameters": [
                    {"name": "X-Tenant-ID", "in": "header", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/downloads/{token}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Resolve a signed download token",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Document bytes"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "AttachRequest": {
            "type": "object",
            "required": ["consumerKind", "consumerId"],
            "properties": {
                "consumerKind": {"type": "string"},
                "consumerId": {"type": "string"}
            }
        },
        "ReviewRequest": {
            "type": "object",
            "required": ["decision"],
            "properties": {
                "decision": {"type": "string", "enum": ["APPROVE", "REJECT"]},
                "reason": {"type": "string"}
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
