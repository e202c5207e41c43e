package model

import "testing"

func TestAppointmentStart(t *testing.T) {
	cases := []struct {
		date, time string
		want       string
		ok         bool
	}{
		{"2026-01-20", "09:00", "2026-01-20T09:00:00Z", true},
		{"2026-01-20", "9:00", "2026-01-20T09:00:00Z", true},
		{"2026-01-20", "", "2026-01-20T00:00:00Z", true},
		{"2026-01-20", "9am", "", false},
		{"20/01/2026", "09:00", "", false},
	}
	for _, tc := range cases {
		got, ok := Appointment{Date: tc.date, Time: tc.time}.Start()
		if ok != tc.ok {
			t.Fatalf("%s %s: expected ok=%v, got %v", tc.date, tc.time, tc.ok, ok)
		}
		if ok && got.Format("2006-01-02T15:04:05Z07:00") != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.date, tc.time, tc.want, got)
		}
	}
}

func TestAppointmentLaterComparesClockTime(t *testing.T) {
	morning := Appointment{Date: "2026-01-20", Time: "9:00"}
	midday := Appointment{Date: "2026-01-20", Time: "10:30"}
	if !midday.Later(morning) {
		t.Fatalf("expected 10:30 to be later than 9:00")
	}
	if morning.Later(midday) {
		t.Fatalf("expected 9:00 not to be later than 10:30")
	}
	nextDay := Appointment{Date: "2026-01-21", Time: "08:00"}
	if !nextDay.Later(midday) {
		t.Fatalf("expected the next day to be later")
	}
}

func TestAppointmentLaterFallsBackToText(t *testing.T) {
	a := Appointment{Date: "2026-01-20", Time: "late"}
	b := Appointment{Date: "2026-01-20", Time: "early"}
	if !a.Later(b) {
		t.Fatalf("expected text comparison when times do not parse")
	}
}
