// Package docs holds the Swagger description of the profiles REST API, served by gin-swagger.
// Regenerate it with: swag init -g cmd/profiled/main.go -o restapi/docs
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
    "paths": {
        "/profiles": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Lists the keys of the loaded profiles",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}}
                }
            }
        },
        "/profiles/{key}": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Returns a profile, the loaded one or a read-only snapshot",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {}}}
                }
            },
            "put": {
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Replaces the data of a loaded profile",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {}}}
                }
            },
            "delete": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Saves and releases a loaded profile",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {}}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "object", "additionalProperties": {}}}
                }
            }
        },
        "/profiles/{key}/load": {
            "post": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Loads a profile for exclusive use, waiting while another process holds it",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {}}},
                    "504": {"description": "Gateway Timeout", "schema": {"type": "object", "additionalProperties": {}}}
                }
            }
        },
        "/profiles/{key}/data": {
            "delete": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Removes the stored record of a loaded profile and releases its session",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {}}},
                    "410": {"description": "Gone", "schema": {"type": "object", "additionalProperties": {}}}
                }
            }
        },
        "/profiles/{key}/session": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Reports whether a profile is loaded here and whether any process holds its session",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/profiles.SessionStatus"}}
                }
            }
        },
        "/profiles/{key}/save": {
            "post": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["Profiles"],
                "summary": "Persists a loaded profile",
                "parameters": [{"type": "string", "description": "Profile key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {}}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "object", "additionalProperties": {}}}
                }
            }
        }
    },
    "definitions": {
        "profiles.SessionStatus": {
            "type": "object",
            "properties": {
                "loaded": {"type": "boolean"},
                "locked": {"type": "boolean"},
                "owned": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Profiles API",
	Description:      "Exclusive load, view, save and unload of per-key profiles.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
