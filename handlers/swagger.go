package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the content API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>labsite content API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "labsite content API", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "message": { "type": "string" }, "error": { "type": "string" } } },
      "Cleanup": { "type": "array", "items": { "type": "object", "properties": { "ref": { "type": "string" }, "status": { "type": "string", "enum": ["deleted", "missing", "failed"] }, "error": { "type": "string" } } } }
    }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Admin login",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "accessToken and refreshToken" }, "401": { "description": "bad credentials" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Rotate refresh token and issue a new access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token and refresh token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke refresh session and access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/logout-all": {
      "post": { "summary": "End every refresh session of the current admin", "security": [{"bearer": []}], "responses": { "200": { "description": "number of sessions ended" }, "401": { "description": "unauthenticated" } } }
    },
    "/auth/me": {
      "get": { "summary": "Current admin", "security": [{"bearer": []}], "responses": { "200": { "description": "username and claims" }, "401": { "description": "unauthenticated" } } }
    },
    "/data/{section}": {
      "parameters": [{ "name": "section", "in": "path", "required": true, "schema": { "type": "string" } }],
      "get": { "summary": "List a section", "responses": { "200": { "description": "array for collections, object for singletons" }, "500": { "description": "document unreadable" } } },
      "post": { "summary": "Append a record, or replace a singleton section", "security": [{"bearer": []}], "responses": { "200": { "description": "stored record and cleanup outcomes" }, "400": { "description": "invalid shape" }, "401": { "description": "unauthenticated" } } }
    },
    "/data/{section}/{id}": {
      "parameters": [
        { "name": "section", "in": "path", "required": true, "schema": { "type": "string" } },
        { "name": "id", "in": "path", "required": true, "schema": { "type": "string" } }
      ],
      "get": { "summary": "Get one record", "responses": { "200": { "description": "record" }, "404": { "description": "section or record not found" } } },
      "patch": { "summary": "Shallow-merge fields into a record", "security": [{"bearer": []}], "responses": { "200": { "description": "updatedData and cleanup outcomes" }, "404": { "description": "section or record not found" } } },
      "delete": { "summary": "Delete a record and its images", "security": [{"bearer": []}], "responses": { "200": { "description": "cleanup outcomes" }, "404": { "description": "section or record not found" } } }
    },
    "/upload": {
      "post": { "summary": "Upload an image (multipart field file)", "security": [{"bearer": []}], "responses": { "200": { "description": "imageUrl" }, "400": { "description": "not an image, empty or too large" } } },
      "delete": { "summary": "Delete an uploaded image", "security": [{"bearer": []}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"imageUrl":{"type":"string"}}}}}}, "responses": { "200": { "description": "deleted" }, "404": { "description": "no such image" } } }
    },
    "/upload/sweep": {
      "post": { "summary": "Find and delete unreferenced images", "security": [{"bearer": []}], "parameters": [{ "name": "dryRun", "in": "query", "schema": { "type": "boolean" } }, { "name": "grace", "in": "query", "schema": { "type": "string" } }], "responses": { "200": { "description": "sweep report" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
