package speech

import (
	"errors"
	"fmt"
	"strings"
)

// SynthesisError 携带 TTS 上游返回的错误码与原因
type SynthesisError struct {
	Code   int
	Reason string
}

func (e *SynthesisError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("speech synthesis failed (%d): %s", e.Code, e.Reason)
	}
	return "speech synthesis failed: " + e.Reason
}

// IsSynthesisError 判断 err 是否包装了 *SynthesisError
func IsSynthesisError(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se)
}

func isResourceMismatchError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
