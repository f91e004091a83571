package handlers

// OpenAPIDoc is served at /swagger/doc.json and rendered by the swagger UI.
// Kept by hand; regenerate when the surface changes.
const OpenAPIDoc = `{
  "openapi": "3.0.3",
  "info": {
    "title": "Snake Arena Tournament Engine",
    "description": "Single-elimination tournament orchestration for battlesnake arenas.",
    "version": "1.0.0"
  },
  "paths": {
    "/tournaments": {
      "get": {"summary": "List tournaments", "responses": {"200": {"description": "OK"}}},
      "post": {"summary": "Create a tournament", "responses": {"201": {"description": "Created"}}}
    },
    "/tournaments/{tournamentID}": {
      "get": {"summary": "Get a tournament", "responses": {"200": {"description": "OK"}}}
    },
    "/tournaments/{tournamentID}/bracket": {
      "get": {"summary": "Get the full bracket tree", "responses": {"200": {"description": "OK"}}}
    },
    "/tournaments/{tournamentID}/open": {
      "post": {"summary": "Open registration", "responses": {"200": {"description": "OK"}}}
    },
    "/tournaments/{tournamentID}/registrations": {
      "post": {"summary": "Register a snake", "responses": {"201": {"description": "Created"}}}
    },
    "/tournaments/{tournamentID}/registrations/{participantID}": {
      "delete": {"summary": "Withdraw a snake", "responses": {"204": {"description": "No Content"}}}
    },
    "/tournaments/{tournamentID}/start": {
      "post": {"summary": "Start the tournament and build the bracket", "responses": {"200": {"description": "OK"}}}
    },
    "/tournaments/{tournamentID}/rounds/run": {
      "post": {"summary": "Run every scheduled match of the current round", "responses": {"200": {"description": "OK"}}}
    },
    "/tournaments/{tournamentID}/reset": {
      "post": {"summary": "Reset back to registration", "responses": {"204": {"description": "No Content"}}}
    },
    "/tournaments/{tournamentID}/cancel": {
      "post": {"summary": "Cancel the tournament", "responses": {"204": {"description": "No Content"}}}
    },
    "/matches/{matchID}/override": {
      "post": {"summary": "Override a match winner (admin)", "responses": {"204": {"description": "No Content"}}}
    }
  }
}`
