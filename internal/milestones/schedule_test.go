package milestones

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildSchedule(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  []string
	}{
		{"Round", "10000.00", []string{"2000", "2000", "2000", "3000", "1000"}},
		{"RemainderToRetainage", "100.01", []string{"20", "20", "20", "30", "10.01"}},
		{"OddCents", "333.33", []string{"66.67", "66.67", "66.67", "100", "33.32"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			value := decimal.RequireFromString(c.value)
			got := BuildSchedule("k1", value, time.Now())
			if len(got) != len(Stages) {
				t.Fatalf("expected %d milestones, got %d", len(Stages), len(got))
			}

			sum := decimal.Zero
			for i, m := range got {
				if !m.Amount.Equal(decimal.RequireFromString(c.want[i])) {
					t.Fatalf("%s: got %s, want %s", m.Stage, m.Amount, c.want[i])
				}
				if m.Seq != i+1 || m.Stage != Stages[i].Name || m.Percentage != Stages[i].Percent {
					t.Fatalf("unexpected milestone %+v", m)
				}
				sum = sum.Add(m.Amount)
			}
			if !sum.Equal(value) {
				t.Fatalf("amounts sum to %s, want %s", sum, value)
			}
		})
	}
}
