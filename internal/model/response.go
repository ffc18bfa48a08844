package model

// Response codes of the bridge envelope.
const (
	SuccessCode        = "000000"
	ErrorCode          = "999999"
	InvalidRequestCode = "100400"
	UnauthorizedCode   = "100401"
)

// Response is the envelope every bridge route answers with, except /healthz.
type Response struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// OK reports whether the response carries the success code.
func (r Response) OK() bool { return r.Code == SuccessCode }

func Success(msg string, data any) Response {
	return Response{Code: SuccessCode, Msg: msg, Data: data}
}

func Error(msg string) Response {
	return Response{Code: ErrorCode, Msg: msg}
}

// Invalid rejects a malformed or unresolvable request.
func Invalid(msg string) Response {
	return Response{Code: InvalidRequestCode, Msg: msg}
}

func Unauthorized(msg string) Response {
	return Response{Code: UnauthorizedCode, Msg: msg}
}
