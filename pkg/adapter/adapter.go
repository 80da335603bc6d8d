// Package adapter wraps the external services the agent consumes as black
// boxes: the Gemini answer generator and embedding model, and Cloud Storage.
package adapter

const tracerName = "github.com/m-mizutani/dossier/pkg/adapter"
