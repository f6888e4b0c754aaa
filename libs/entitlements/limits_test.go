package entitlements

import "testing"

func TestAllows(t *testing.T) {
	cases := []struct {
		current, max int
		want         bool
	}{
		{0, 0, true},
		{1000, 0, true},
		{1, 2, true},
		{2, 2, false},
		{3, 2, false},
	}
	for _, c := range cases {
		if got := Allows(c.current, c.max); got != c.want {
			t.Fatalf("Allows(%d, %d) = %v, want %v", c.current, c.max, got, c.want)
		}
	}
	if Check(2, 2) != ErrLimitReached {
		t.Fatal("expected ErrLimitReached")
	}
}

func TestFreeLimits(t *testing.T) {
	f := Free()
	if f.MaxStaff != 2 || f.MaxServices != 5 || f.MaxMonthlyAppointments != 100 {
		t.Fatalf("unexpected free limits %+v", f)
	}
}
