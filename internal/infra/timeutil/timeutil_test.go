package timeutil_test

import (
	"testing"
	"time"

	"telegram-otpguard/internal/infra/timeutil"
)

func TestParseLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		value      string
		wantOffset int // секунды от UTC; для IANA-зон не проверяется
		wantErr    bool
		iana       bool
	}{
		{name: "ianaZone", value: "Europe/Moscow", iana: true},
		{name: "utcLiteral", value: "UTC", wantOffset: 0},
		{name: "zuluLiteral", value: "Z", wantOffset: 0},
		{name: "positiveOffsetColon", value: "+03:00", wantOffset: 3 * 3600},
		{name: "negativeOffsetCompact", value: "-0700", wantOffset: -7 * 3600},
		{name: "utcPrefixedOffset", value: "UTC+3", wantOffset: 3 * 3600},
		{name: "gmtHalfHour", value: "GMT-04:30", wantOffset: -(4*3600 + 30*60)},
		{name: "empty", value: "", wantErr: true},
		{name: "garbage", value: "Mars/Olympus", wantErr: true},
		{name: "offsetTooLarge", value: "+15:00", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			loc, err := timeutil.ParseLocation(tc.value)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseLocation(%q) must fail", tc.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocation(%q) error: %v", tc.value, err)
			}
			if tc.iana {
				return
			}
			_, offset := time.Unix(0, 0).In(loc).Zone()
			if offset != tc.wantOffset {
				t.Fatalf("offset = %d, want %d", offset, tc.wantOffset)
			}
		})
	}
}
