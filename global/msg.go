package global

import (
	"net/http"

	"GreenChat/tools/errs"
)

// Msg is the envelope of every REST response.
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{Code: 200, Data: data}
}

// Fail turns err into an envelope carrying its code; uncoded errors become
// internal errors and keep their text out of the response.
func Fail(err error) *Msg {
	ce, ok := errs.As(err)
	if !ok {
		return &Msg{Code: errs.ServerInternalError, Msg: "server internal error"}
	}
	return &Msg{Code: ce.Code, Msg: ce.Msg}
}

// HTTPStatus is the status a coded error is answered with.
func HTTPStatus(code int) int {
	switch code {
	case errs.MissingCredential, errs.InvalidCredential, errs.ExpiredCredential, errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.InactiveMember, errs.Forbidden:
		return http.StatusForbidden
	case errs.RoomNotFound, errs.MessageNotFound:
		return http.StatusNotFound
	case errs.RoomInactive:
		return http.StatusConflict
	case errs.EmptyText, errs.UnknownMessageType, errs.MalformedFrame, errs.UnsupportedFrame, errs.ArgsError:
		return http.StatusUnprocessableEntity
	case errs.DailyLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
