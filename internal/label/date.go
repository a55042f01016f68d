package label

import "time"

const (
	dateCodeLayout = "20060102"
	displayLayout  = "Jan 02, 2006"
)

// NormalizeDate renders an HL7 date code (YYYYMMDD, optionally followed by a
// time of day) as "Mon DD, YYYY". Anything that is not a real calendar date
// yields "", including year 0000.
func NormalizeDate(code string) string {
	if len(code) < len(dateCodeLayout) {
		return ""
	}
	code = code[:len(dateCodeLayout)]
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ""
		}
	}

	if code[:4] == "0000" {
		return ""
	}

	t, err := time.Parse(dateCodeLayout, code)
	if err != nil {
		return ""
	}
	return t.Format(displayLayout)
}
