// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "Bearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/api/v1/kb": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["knowledge-bases"],
                "summary": "Create a knowledge base",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.CreateKnowledgeBaseRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.KnowledgeBaseResponse"}}}
            }
        },
        "/api/v1/kb/{kbId}": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["knowledge-bases"],
                "summary": "Get a knowledge base",
                "parameters": [{"in": "path", "name": "kbId", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.KnowledgeBaseResponse"}}}
            }
        },
        "/api/v1/kb/{kbId}/documents": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["documents"],
                "summary": "Upload a document",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"in": "path", "name": "kbId", "type": "integer", "required": true},
                    {"in": "formData", "name": "file", "type": "file", "required": true},
                    {"in": "formData", "name": "ingest_params", "type": "string"}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.DocumentResponse"}}}
            }
        },
        "/api/v1/kb/{kbId}/documents/{docId}/ingest": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["documents"],
                "summary": "Queue a document for ingestion",
                "parameters": [
                    {"in": "path", "name": "kbId", "type": "integer", "required": true},
                    {"in": "path", "name": "docId", "type": "integer", "required": true}
                ],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/dto.IngestResponse"}}}
            }
        },
        "/api/v1/kb/{kbId}/documents/{docId}": {
            "delete": {
                "security": [{"Bearer": []}],
                "tags": ["documents"],
                "summary": "Soft delete a document",
                "parameters": [
                    {"in": "path", "name": "kbId", "type": "integer", "required": true},
                    {"in": "path", "name": "docId", "type": "integer", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/api/v1/retrieve": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["retrieval"],
                "summary": "Retrieve ranked chunks across knowledge bases",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.RetrieveRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.RetrieveResponse"}}}
            }
        },
        "/api/v1/conversations": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["chat"],
                "summary": "Start a conversation",
                "parameters": [{"in": "body", "name": "request", "schema": {"$ref": "#/definitions/dto.CreateConversationRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.ConversationResponse"}}}
            }
        },
        "/api/v1/conversations/{id}/messages": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["chat"],
                "summary": "List conversation messages",
                "parameters": [
                    {"in": "path", "name": "id", "type": "integer", "required": true},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "before_id", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.MessageResponse"}}}}
            },
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["chat"],
                "summary": "Send a message",
                "parameters": [
                    {"in": "path", "name": "id", "type": "integer", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.SendMessageRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.SendMessageResponse"}}}
            }
        },
        "/api/v1/conversations/{id}/messages/stream": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["chat"],
                "summary": "Send a message and stream the reply",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"in": "path", "name": "id", "type": "integer", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.SendMessageRequest"}}
                ],
                "responses": {"200": {"description": "event stream", "schema": {"type": "string"}}}
            }
        }
    },
    "definitions": {
        "dto.CreateKnowledgeBaseRequest": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}, "description": {"type": "string"}, "visibility": {"type": "string", "example": "private"}, "embedding_model": {"type": "string"}, "reranker_model": {"type": "string"}, "use_reranker": {"type": "boolean"}}},
        "dto.KnowledgeBaseResponse": {"type": "object", "properties": {"id": {"type": "integer"}, "name": {"type": "string"}, "collection": {"type": "string"}, "use_reranker": {"type": "boolean"}, "visibility": {"type": "string"}, "doc_count": {"type": "integer"}, "total_size_bytes": {"type": "integer"}}},
        "dto.DocumentResponse": {"type": "object", "properties": {"id": {"type": "integer"}, "uid": {"type": "string"}, "kb_id": {"type": "integer"}, "filename": {"type": "string"}, "file_ext": {"type": "string"}, "size_bytes": {"type": "integer"}, "status": {"type": "string"}, "chunk_count": {"type": "integer"}, "error": {"type": "string"}}},
        "dto.IngestResponse": {"type": "object", "properties": {"kb_id": {"type": "integer"}, "doc_id": {"type": "integer"}, "status": {"type": "string", "example": "scheduled"}}},
        "dto.RetrieveRequest": {"type": "object", "properties": {"query": {"type": "string"}, "kb_ids": {"type": "array", "items": {"type": "integer"}}, "top_k": {"type": "integer"}, "per_kb_k": {"type": "integer"}, "use_rerank": {"type": "boolean"}, "rerank_top_n": {"type": "integer"}}},
        "dto.RetrieveResponse": {"type": "object", "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/dto.RetrieveItem"}}, "reranked": {"type": "boolean"}}},
        "dto.RetrieveItem": {"type": "object", "properties": {"text": {"type": "string"}, "kb_id": {"type": "integer"}, "doc_id": {"type": "integer"}, "doc_uid": {"type": "string"}, "chunk_index": {"type": "integer"}, "filename": {"type": "string"}, "distance": {"type": "number"}, "score": {"type": "number"}}},
        "dto.CreateConversationRequest": {"type": "object", "properties": {"title": {"type": "string"}, "model": {"type": "string"}, "kb_ids": {"type": "array", "items": {"type": "integer"}}}},
        "dto.ConversationResponse": {"type": "object", "properties": {"id": {"type": "integer"}, "uid": {"type": "string"}, "title": {"type": "string"}, "model": {"type": "string"}, "kb_ids": {"type": "array", "items": {"type": "integer"}}}},
        "dto.SendMessageRequest": {"type": "object", "properties": {"content": {"type": "string"}, "model": {"type": "string"}, "temperature": {"type": "number"}, "top_p": {"type": "number"}, "max_tokens": {"type": "integer"}, "idempotency_key": {"type": "string"}}},
        "dto.MessageResponse": {"type": "object", "properties": {"id": {"type": "integer"}, "conversation_id": {"type": "integer"}, "role": {"type": "string"}, "content": {"type": "string"}, "model": {"type": "string"}, "latency_ms": {"type": "integer"}, "error": {"type": "string"}}},
        "dto.SendMessageResponse": {"type": "object", "properties": {"user_message": {"$ref": "#/definitions/dto.MessageResponse"}, "assistant_message": {"$ref": "#/definitions/dto.MessageResponse"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "KB RAG API",
	Description:      "Knowledge base ingestion, retrieval and chat.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
