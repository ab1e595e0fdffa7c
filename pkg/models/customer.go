package models

// Profile is the loyalty customer profile as the provider reports it.
// The provider uses capitalized JSON keys on the wire.
type Profile struct {
	ID         string `json:"Id,omitempty"`
	FirstName  string `json:"FirstName,omitempty"`
	LastName   string `json:"LastName,omitempty"`
	Email      string `json:"Email,omitempty"`
	Birthday   string `json:"Birthday,omitempty"`
	Zip        string `json:"Zip,omitempty"`
	Phone      string `json:"Phone,omitempty"`
	CardNumber string `json:"cardNumber,omitempty"`
}

// TokenPair is the access/refresh token pair handed out by the provider
// after one-time-code verification.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
