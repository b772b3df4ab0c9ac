package models

import "time"

// Tokens is the persisted form of an OAuth credential pair.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Profile is the account snapshot fetched after authorization.
type Profile struct {
	ID      string `json:"id" yaml:"id"`
	Email   string `json:"email" yaml:"email"`
	Name    string `json:"name" yaml:"name"`
	Picture string `json:"picture" yaml:"picture"`
}
