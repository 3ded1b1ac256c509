package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := FingerprintRead("/tmp/notes.md", fs.ErrPermission)

	assert.True(t, Is(err, ErrFingerprintRead))
	assert.False(t, Is(err, ErrWatchTargetUnavailable))
	assert.True(t, Is(err, fs.ErrPermission), "cause should stay reachable")
}

func TestError_WrappedByFmt(t *testing.T) {
	err := fmt.Errorf("reconcile: %w", WatchTargetUnavailable("/mnt/usb/a.txt", fs.ErrNotExist))

	assert.True(t, Is(err, ErrWatchTargetUnavailable))
	assert.Equal(t, CodeWatchTargetUnavailable, CodeOf(err))
	assert.Contains(t, err.Error(), "cannot watch /mnt/usb/a.txt")
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(New("boom")))
}

func TestCode_Recoverable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeTransientObservation, true},
		{CodeSelfWriteRace, true},
		{CodeWatchTargetUnavailable, false},
		{CodeFingerprintRead, false},
		{CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Recoverable())
		})
	}
}

func TestError_WithDetails(t *testing.T) {
	err := ValidationWithDetails("invalid settings", map[string]string{"debounceWindowMs": "too small"})
	withMore := err.WithDetails("replaced")

	assert.Equal(t, "replaced", withMore.Details)
	assert.Equal(t, CodeValidation, withMore.Code)
	assert.True(t, Is(withMore, ErrValidation))
}
