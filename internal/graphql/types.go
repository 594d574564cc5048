package graphql

// Error codes reported in GraphQL error extensions.
const (
	CodeValidation = "VALIDATION"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "CONFLICT"
	CodeInternal   = "INTERNAL"
	CodeBadRequest = "BAD_REQUEST"
)

// Request is an incoming GraphQL operation.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Response is the GraphQL result envelope.
type Response struct {
	Data   interface{} `json:"data"`
	Errors []Error     `json:"errors,omitempty"`
}

// Error is a single GraphQL error.
type Error struct {
	Message    string                 `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Location points at the query position an error refers to.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func requestError(message string) *Response {
	return &Response{Errors: []Error{{
		Message:    message,
		Extensions: map[string]interface{}{"code": CodeBadRequest},
	}}}
}
