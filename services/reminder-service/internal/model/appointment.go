package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "noShow"
)

// ChannelWhatsApp is recorded in confirmedVia/cancelledVia for button replies.
const ChannelWhatsApp = "whatsapp"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Appointment struct {
	ID             string     `json:"id"`
	PatientID      string     `json:"patientId"`
	PatientName    string     `json:"patientName"`
	Phone          string     `json:"phone"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Status         Status     `json:"status"`
	ReminderSent   bool       `json:"reminderSent"`
	ReminderSentAt *time.Time `json:"reminderSentAt,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
	ConfirmedVia   string     `json:"confirmedVia,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
	CancelledVia   string     `json:"cancelledVia,omitempty"`
}

// Start parses the local date and time as a wall-clock instant in UTC. An empty time means
// midnight; hours may be unpadded ("9:00").
func (a Appointment) Start() (time.Time, bool) {
	day, err := time.Parse(DateLayout, strings.TrimSpace(a.Date))
	if err != nil {
		return time.Time{}, false
	}
	clock := strings.TrimSpace(a.Time)
	if clock == "" {
		return day, true
	}
	tod, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(tod.Hour())*time.Hour + time.Duration(tod.Minute())*time.Minute), true
}

// Later reports whether a starts after b. When either side does not parse the raw
// "date time" text is compared instead.
func (a Appointment) Later(b Appointment) bool {
	as, aok := a.Start()
	bs, bok := b.Start()
	if aok && bok {
		return as.After(bs)
	}
	return a.sortKey() > b.sortKey()
}

func (a Appointment) sortKey() string {
	return strings.TrimSpace(a.Date) + " " + strings.TrimSpace(a.Time)
}

// DueOn reports whether a reminder is still owed for the given local calendar date.
func (a Appointment) DueOn(date string) bool {
	return a.Date == date && a.Status != StatusCancelled && !a.ReminderSent
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	default:
		return false
	}
}
