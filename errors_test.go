package taskengine

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{taskNotFound("x"), ErrorKindNotFound},
		{fmt.Errorf("wrapped: %w", ErrPushNotificationConfigNotFound), ErrorKindNotFound},
		{ErrTaskAlreadyExists, ErrorKindAlreadyExists},
		{ErrUnsupportedOperation, ErrorKindUnsupported},
		{ErrPushNotificationNotSupported, ErrorKindUnsupported},
		{fmt.Errorf("%w: %w", ErrUnsupportedOperation, ErrVerificationFailed), ErrorKindVerificationFailed},
		{ErrTaskNotCancelable, ErrorKindNotCancelable},
		{ErrContention, ErrorKindContention},
		{fmt.Errorf("%w: boom", ErrAgentFailure), ErrorKindAgentFailure},
		{ErrInvalidParams, ErrorKindInvalidParams},
		{errors.New("other"), ErrorKindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
