// Package pretty formats long values for log lines.
package pretty

import "fmt"

// Abbrev returns a Stringer which shortens s when printed. With no ranges, s
// is cut to 12 bytes when longer than 12. With one range, that value is used
// for both the limit and the cut. With two, they are the limit and the cut.
func Abbrev(s string, ranges ...int) Abbreviated {
	MaxLen := 12
	CutTo := 12
	if len(ranges) >= 2 {
		MaxLen, CutTo = ranges[0], ranges[1]
	} else if len(ranges) == 1 {
		MaxLen, CutTo = ranges[0], ranges[0]
	}
	if CutTo > MaxLen {
		CutTo = MaxLen
	}
	return Abbreviated{
		Original: s,
		MaxLen:   MaxLen,
		CutTo:    CutTo,
	}
}

// Abbreviated is a string that is shortened when formatted.
type Abbreviated struct {
	Original string
	MaxLen   int
	CutTo    int
}

func (s Abbreviated) String() string {
	if len(s.Original) > s.MaxLen {
		return fmt.Sprintf("%s… (%d bytes)", s.Original[:s.CutTo], len(s.Original))
	}
	return s.Original
}
