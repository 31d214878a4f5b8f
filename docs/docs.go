// Package docs registers the OpenAPI description served at /swagger/doc.json.
//
// Regenerate with: swag init -g cmd/parrot/main.go -o docs --parseInternal
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Capability report",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/health.Report"}
                    }
                }
            }
        },
        "/v1/audio/speech": {
            "post": {
                "description": "Renders text to audio. The provider is chosen from the explicit provider field,\nthen from the language (system voice for allow-listed languages, clone model for\nother non-English text), then the default neural pipeline.",
                "consumes": ["application/json"],
                "produces": ["audio/wav", "audio/mpeg", "application/json"],
                "tags": ["speech"],
                "summary": "Synthesize speech",
                "parameters": [
                    {
                        "description": "Synthesis request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/message.SpeechRequest"}
                    },
                    {
                        "type": "string",
                        "description": "Bearer token when auth is enabled",
                        "name": "Authorization",
                        "in": "header"
                    }
                ],
                "responses": {
                    "200": {"description": "Encoded audio", "schema": {"type": "file"}},
                    "400": {"description": "Malformed request", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "401": {"description": "Missing or wrong bearer token", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "415": {"description": "Format unsupported in this deployment", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "422": {"description": "No provider, silent output, unknown speaker or text too long", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "429": {"description": "Rate limit exceeded", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "500": {"description": "Engine failure", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/v1/voices": {
            "get": {
                "description": "Without rich, returns the default provider's voice ids (falls back to af_heart).\nWith rich=1, returns {id, provider, lang} objects merged across every registered provider.",
                "produces": ["application/json"],
                "tags": ["voices"],
                "summary": "List voices",
                "parameters": [
                    {
                        "type": "boolean",
                        "description": "Return the merged catalog",
                        "name": "rich",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Legacy shape; rich=1 returns message.VoiceList",
                        "schema": {"$ref": "#/definitions/message.VoiceIDList"}
                    }
                }
            }
        }
    },
    "definitions": {
        "health.Report": {
            "type": "object",
            "properties": {
                "accelerator": {"type": "boolean"},
                "lang": {"type": "string"},
                "mp3": {"type": "boolean"},
                "ok": {"type": "boolean"},
                "providers": {"type": "array", "items": {"type": "string"}}
            }
        },
        "message.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "message.SpeechRequest": {
            "type": "object",
            "properties": {
                "format": {"type": "string"},
                "input": {"type": "string"},
                "language": {"type": "string"},
                "model": {"type": "string"},
                "provider": {"type": "string"},
                "sample_rate": {"type": "integer"},
                "speed": {"type": "number"},
                "voice": {"type": "string"}
            }
        },
        "message.VoiceIDList": {
            "type": "object",
            "properties": {
                "voices": {"type": "array", "items": {"type": "string"}}
            }
        },
        "message.VoiceList": {
            "type": "object",
            "properties": {
                "voices": {"type": "array", "items": {"$ref": "#/definitions/tts.Voice"}}
            }
        },
        "tts.Voice": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "lang": {"type": "string"},
                "provider": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "parrot speech synthesis API",
	Description:      "Speech-synthesis sidecar with provider routing and an OpenAI-compatible speech endpoint.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
