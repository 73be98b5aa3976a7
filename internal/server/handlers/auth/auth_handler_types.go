package auth

// LoginRequest starts an OAuth login.
type LoginRequest struct {
	ReturnURL string `form:"returnUrl"`
}

// CallbackRequest is what Google sends back to the redirect URL.
type CallbackRequest struct {
	State string `form:"state"`
	Code  string `form:"code"`
	Error string `form:"error"`
}
