// Package models defines the domain types of the canvas sync server:
// users, documents, canvas elements, edit operations, permissions and
// versions. The types here carry no policy; permission gating and operation
// application live in the processing layer.
package models

// User is the identity a client asserts at handshake time. It is ephemeral
// and unverified; identity verification is a boundary concern outside this
// server.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}
