// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered account.
//
// Users sign up with a name, an email and a password. The email is the login
// identifier, so it is normalised (trimmed + lowercased) before it is written,
// and the database enforces uniqueness with a UNIQUE COLLATE NOCASE column.
//
// WHY PasswordHash HAS `json:"-"`:
// The "-" tag tells encoding/json to skip the field entirely. Even if a handler
// accidentally encodes a *User, the bcrypt hash can never leak into a response.
type User struct {
	ID           string    `json:"id"       db:"id"`
	Name         string    `json:"name"     db:"name"`
	Email        string    `json:"email"    db:"email"`
	PasswordHash string    `json:"-"        db:"password_hash"`
	JoinDate     time.Time `json:"joinDate" db:"join_date"`
}
