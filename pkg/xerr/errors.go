package xerr

import "fmt"

// 常用错误码定义
const (
	OK                 = 200
	RequestParamsError = 400
	UserAuthError      = 401
	PaymentError       = 402
	RecordNotFound     = 404
	ServerCommonError  = 500
	DbError            = 501
	ChainRpcError      = 502
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

func MapErrMsg(code int) string {
	switch code {
	case UserAuthError:
		return "user auth error"
	case RecordNotFound:
		return "not found"
	case RequestParamsError:
		return "invalid request"
	case DbError:
		return "database busy"
	case ChainRpcError:
		return "chain rpc unavailable"
	default:
		return "internal error"
	}
}
