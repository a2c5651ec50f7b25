package backend

import (
	"errors"
	"fmt"
)

// Error はAuth/Dataサービスが返したエラーを表す。
// Messageはサービスが提供した文言で、ユーザーに表示してよい。
type Error struct {
	Status  int    // HTTPステータス相当
	Code    string // サービス固有のエラーコード（任意）
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// ErrNotAuthenticated はセッションが存在しない状態での操作を表す。
var ErrNotAuthenticated = &Error{Status: 401, Code: "not_authenticated", Message: "Auth session missing!"}

// ServiceMessage はerrがサービス由来のエラーであればその文言を返す。
// 通信エラーなどサービスが文言を返していない場合はokがfalseになる。
func ServiceMessage(err error) (string, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message, true
	}
	return "", false
}
