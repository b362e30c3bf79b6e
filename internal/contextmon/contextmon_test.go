package contextmon

import "testing"

func TestThresholdForShiftsAutonomousModesEarlier(t *testing.T) {
	m := &Monitor{threshold: 90, offset: 10}
	cases := []struct {
		mode string
		want int
	}{
		{"interactive", 90},
		{"background", 80},
		{"mission", 80},
		{"autonomous", 80},
	}
	for _, c := range cases {
		if got := m.thresholdFor(c.mode); got != c.want {
			t.Errorf("thresholdFor(%q) = %d, want %d", c.mode, got, c.want)
		}
	}
}
