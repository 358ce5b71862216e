package authapi

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Client-facing messages are fixed and deliberately uninformative:
// login failures never distinguish unknown email from wrong password,
// and token rejections never reveal whether the token was revoked,
// expired, or forged.
const (
	msgRegistered         = "User registered successfully"
	msgAlreadyRegistered  = "Email already registered"
	msgInvalidCredentials = "Invalid email or password"
	msgLoggedOut          = "Successfully logged out"
	msgUnauthorized       = "Invalid or expired token"
)
