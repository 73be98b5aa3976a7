package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeNotFound       = "E_NOT_FOUND"       // no such route or method

	// Auth errors
	CodeAuthInvalidSession = "E_AUTH_INVALID_SESSION" // session cookie is missing, malformed, expired or unknown.
	CodeAuthInvalidState   = "E_AUTH_INVALID_STATE"   // OAuth state is unknown or expired.
	CodeAuthLoginFailed    = "E_AUTH_LOGIN_FAILED"    // the OAuth callback could not complete the login.

	// Drive errors
	CodeDriveListFailed = "E_DRIVE_LIST_FAILED" // listing files on Drive failed.
	CodeDriveUserInfo   = "E_DRIVE_USERINFO"    // fetching the user profile failed.
)
