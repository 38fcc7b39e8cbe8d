package domain

import "testing"

func TestValidateInstrument(t *testing.T) {
	for _, id := range []string{"sh600000", "sz000001", "bj830799", "sh0"} {
		if err := ValidateInstrument(id); err != nil {
			t.Errorf("ValidateInstrument(%q) failed: %v", id, err)
		}
	}
}

func TestValidateInstrumentRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "sh", "600000", "SH600000", "sh-600", "sh600 00", "a1"} {
		if err := ValidateInstrument(id); err == nil {
			t.Errorf("ValidateInstrument(%q) should fail", id)
		}
	}
}

func TestInstrumentPrefix(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"sh600000", "sh6"},
		{"sz000001", "sz0"},
		{"bj830799", "bj8"},
	}
	for _, c := range cases {
		if got := InstrumentPrefix(c.in); got != c.want {
			t.Errorf("InstrumentPrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
