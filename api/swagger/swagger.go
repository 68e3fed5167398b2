package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "KYC Attestation API",
        "description": "Encrypted document upload and on-chain attestation gateway",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Session", "description": "Wallet challenge and session tokens"},
        {"name": "Documents", "description": "Document uploads, submissions and history"},
        {"name": "Attesters", "description": "Attester registration and review queue"},
        {"name": "Views", "description": "Statistics and dashboard"}
    ],
    "paths": {
        "/health": {
            "get": {"summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/metrics": {
            "get": {"summary": "Prometheus metrics", "produces": ["text/plain"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/session/challenge": {
            "post": {
                "tags": ["Session"],
                "summary": "Request a message to sign",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChallengeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid address", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/session/connect": {
            "post": {
                "tags": ["Session"],
                "summary": "Exchange a signed challenge for a session token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConnectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Signature does not match", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/session/disconnect": {
            "post": {
                "tags": ["Session"],
                "summary": "Revoke the current session",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "Disconnected"}}
            }
        },
        "/api/v1/statistics": {
            "get": {
                "tags": ["Views"],
                "summary": "Ledger-wide totals",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/dashboard": {
            "get": {
                "tags": ["Views"],
                "summary": "Dashboard for the connected account",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/documents": {
            "post": {
                "tags": ["Documents"],
                "summary": "Submit a content identifier to the ledger",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitDocumentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Ledger rejected the call", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Ledger unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/documents/upload": {
            "post": {
                "tags": ["Documents"],
                "summary": "Encrypt and upload a document",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "submit", "in": "formData", "type": "boolean"}
                ],
                "responses": {
                    "201": {"description": "Uploaded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Rejected file", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Storage not configured", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/documents/{address}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Documents owned by an address",
                "parameters": [
                    {"name": "address", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/documents/{address}/export": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download document history",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "address", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "Attachment"}}
            }
        },
        "/api/v1/uploads/unsubmitted": {
            "get": {
                "tags": ["Documents"],
                "summary": "Uploads not yet recorded on the ledger",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/uploads/{id}/submit": {
            "post": {
                "tags": ["Documents"],
                "summary": "Retry the ledger submission of an upload",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string", "format": "uuid"}
                ],
                "responses": {
                    "201": {"description": "Submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attesters": {
            "post": {
                "tags": ["Attesters"],
                "summary": "Register the connected account as an attester",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/BecomeAttesterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Wrong stake or already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attesters/stake": {
            "get": {
                "tags": ["Attesters"],
                "summary": "Stake required to become an attester",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/attesters/pending": {
            "get": {
                "tags": ["Attesters"],
                "summary": "Documents awaiting review",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/attesters/{address}": {
            "get": {
                "tags": ["Attesters"],
                "summary": "Attester record",
                "parameters": [
                    {"name": "address", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/attesters/pending/{owner}/{index}/approve": {
            "post": {
                "tags": ["Attesters"],
                "summary": "Approve a pending document",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "owner", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/attesters/pending/{owner}/{index}/reject": {
            "post": {
                "tags": ["Attesters"],
                "summary": "Reject a pending document",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "owner", "in": "path", "required": true, "type": "string"},
                    {"name": "index", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectDocumentRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "ChallengeRequest": {
            "type": "object",
            "required": ["address"],
            "properties": {"address": {"type": "string"}}
        },
        "ConnectRequest": {
            "type": "object",
            "required": ["address", "signature"],
            "properties": {
                "address": {"type": "string"},
                "signature": {"type": "string"}
            }
        },
        "SubmitDocumentRequest": {
            "type": "object",
            "required": ["cid"],
            "properties": {"cid": {"type": "string"}}
        },
        "BecomeAttesterRequest": {
            "type": "object",
            "properties": {"value": {"type": "string", "description": "Stake in wei; defaults to the required stake"}}
        },
        "RejectDocumentRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {"reason": {"type": "string"}}
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
