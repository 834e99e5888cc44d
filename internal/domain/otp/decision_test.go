package otp_test

import (
	"testing"

	"telegram-otpguard/internal/domain/otp"
)

// TestDecide перебирает таблицу приоритетов: temp passthrough выше паузы,
// пауза выше destroyer, destroyer выше forward, иначе ignore.
func TestDecide(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		view otp.PolicyView
		want otp.Action
	}{
		{
			name: "allOff",
			view: otp.PolicyView{},
			want: otp.ActionIgnore,
		},
		{
			name: "forwardOnly",
			view: otp.PolicyView{ForwardEnabled: true},
			want: otp.ActionForward,
		},
		{
			name: "destroyerOnly",
			view: otp.PolicyView{DestroyerEnabled: true},
			want: otp.ActionDestroy,
		},
		{
			name: "destroyerPaused",
			view: otp.PolicyView{DestroyerEnabled: true, DestroyerPaused: true},
			want: otp.ActionPausedForward,
		},
		{
			name: "tempPassthroughBeatsDestroyer",
			view: otp.PolicyView{DestroyerEnabled: true, TempPassthrough: true},
			want: otp.ActionTempForward,
		},
		{
			name: "tempPassthroughBeatsPause",
			view: otp.PolicyView{DestroyerEnabled: true, DestroyerPaused: true, TempPassthrough: true},
			want: otp.ActionTempForward,
		},
		{
			name: "pauseWithoutDestroyerIsNoop",
			view: otp.PolicyView{DestroyerPaused: true, ForwardEnabled: true},
			want: otp.ActionForward,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := otp.Decide(tc.view); got != tc.want {
				t.Fatalf("Decide(%+v) = %v, want %v", tc.view, got, tc.want)
			}
		})
	}
}
