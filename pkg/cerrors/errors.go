package cerrors

import (
	"fmt"
	"strings"
)

type Error struct {
	Source    string    `json:"source,omitempty"`
	ErrorCode ErrorType `json:"errorCode,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Target    string    `json:"target,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (e Error) Error() string {
	var out strings.Builder
	if e.ErrorCode != "" {
		out.WriteString(fmt.Sprintf("{errorCode: %s}", e.ErrorCode))
	}
	if e.Phase != "" {
		out.WriteString(fmt.Sprintf("{phase: %s}", e.Phase))
	}
	if e.Source != "" {
		out.WriteString(fmt.Sprintf("{source: %s}", e.Source))
	}
	if e.Target != "" {
		out.WriteString(fmt.Sprintf("{target: %s}", e.Target))
	}
	if e.Reason != "" {
		out.WriteString(fmt.Sprintf("{reason: %s}", e.Reason))
	}
	return out.String()
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	if e.ErrorCode == "" {
		return ErrorTypeGeneric
	}
	return e.ErrorCode
}

// PreserveError propagates an already user-friendly error as-is,
// wrapping anything else as a generic error with the given reason
func PreserveError(err error, reason string) error {
	if IsUserFriendly(err) {
		return err
	}
	return Error{ErrorCode: ErrorTypeGeneric, Reason: reason}
}
