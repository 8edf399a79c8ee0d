package ttl

import "testing"

func TestParseBankWord(t *testing.T) {
	tests := []struct {
		in   string
		want uint8
	}{
		{"0", 0},
		{"255", 255},
		{"010", 10},
		{"0x1F", 0x1f},
		{" 0XfF ", 0xff},
		{"0b1010", 10},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBankWord(tt.in)
			if err != nil {
				t.Fatalf("ParseBankWord(%q): %v", tt.in, err)
			}
			assertInts(t, int(got), int(tt.want))
		})
	}

	for _, in := range []string{"", "256", "-1", "0x100", "0b2", "abc"} {
		t.Run("invalid "+in, func(t *testing.T) {
			_, err := ParseBankWord(in)
			assertOutOfRange(t, err)
		})
	}
}
