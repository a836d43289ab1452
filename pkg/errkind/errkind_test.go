package errkind

import (
	"fmt"
	"testing"
)

func TestOfRecoversKindThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("insufficient balance: %w", ErrInsufficientFunds)
	if got := Of(wrapped); got != KindInsufficientFunds {
		t.Errorf("Of(wrapped) = %s, want %s", got, KindInsufficientFunds)
	}
}

func TestOfDefaultsToInternal(t *testing.T) {
	if got := Of(fmt.Errorf("unrelated")); got != KindInternal {
		t.Errorf("Of(unrelated) = %s, want %s", got, KindInternal)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindRPCFailure, true},
		{KindOperationTimeout, true},
		{KindValidation, false},
		{KindInsufficientFunds, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.kind); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
