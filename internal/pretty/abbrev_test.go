package pretty

import "testing"

func TestAbbrev(t *testing.T) {
	testCases := []struct {
		in     string
		ranges []int
		want   string
	}{
		{"short", nil, "short"},
		{"0123456789abcdef", nil, "0123456789ab… (16 bytes)"},
		{"0123456789abcdef", []int{4}, "0123… (16 bytes)"},
		{"0123456789abcdef", []int{20, 4}, "0123456789abcdef"},
		{"0123456789abcdef", []int{8, 2}, "01… (16 bytes)"},
	}

	for i, tc := range testCases {
		if got := Abbrev(tc.in, tc.ranges...).String(); got != tc.want {
			t.Errorf("[case %d] got: %q; want: %q", i, got, tc.want)
		}
	}
}
