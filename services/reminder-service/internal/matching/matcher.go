// Package matching correlates an inbound sender phone with a stored appointment.
package matching

import (
	"strings"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// Matcher picks the appointment an inbound reply refers to. ok is false when nothing
// actionable matches.
type Matcher interface {
	Match(senderPhone string, appts []model.Appointment) (appt model.Appointment, ok bool)
}

var phoneSeparators = strings.NewReplacer("+", "", " ", "", "-", "")

// NormalizePhone strips plus signs, spaces and hyphens.
func NormalizePhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}

// Actionable reports whether a reply may still change the appointment.
func Actionable(a model.Appointment) bool {
	return a.Status != model.StatusCancelled && a.Status != model.StatusConfirmed
}

// SubstringLatest matches when either normalized phone contains the other, which tolerates
// stored numbers with or without a country code. Among candidates the latest date and time
// wins.
type SubstringLatest struct{}

func (SubstringLatest) Match(senderPhone string, appts []model.Appointment) (model.Appointment, bool) {
	sender := NormalizePhone(senderPhone)
	if sender == "" {
		return model.Appointment{}, false
	}
	var (
		best  model.Appointment
		found bool
	)
	for _, a := range appts {
		if !Actionable(a) {
			continue
		}
		stored := NormalizePhone(a.Phone)
		if stored == "" {
			continue
		}
		if !strings.Contains(stored, sender) && !strings.Contains(sender, stored) {
			continue
		}
		if !found || a.Later(best) {
			best = a
			found = true
		}
	}
	return best, found
}
