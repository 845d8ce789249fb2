package matchdto

// ErrorBody is the JSON error payload of the admin API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e ErrorBody) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "kalah relay error"
}
