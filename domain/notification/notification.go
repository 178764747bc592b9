// Package notification builds the persistent notifications created by the
// indications services.
package notification

import (
	"fmt"
	"regexp"
	"time"
)

// Notification is a persistent, user-visible message. Creating a
// notification with an existing ID replaces it.
type Notification struct {
	ID        string    `json:"notification_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Override keys accepted in the notification field of a call.
const (
	KeyTitle   = "title"
	KeyMessage = "message"
	KeyID      = "notification_id"
)

// ForPush builds the notification for submitted readings.
// This is a PURE function.
func ForPush(meterCode string, periodStart, periodEnd *time.Time) Notification {
	msg := fmt.Sprintf("Показания переданы для счётчика №%s", meterCode)
	if periodStart != nil && periodEnd != nil {
		msg += fmt.Sprintf(" за период %s &mdash; %s",
			periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"))
	}

	return Notification{
		ID:      "mosenergosbyt_push_indications_" + meterCode,
		Title:   "Переданы показания - №" + meterCode,
		Message: msg,
	}
}

// ForCalculation builds the notification for a charge calculation.
// This is a PURE function.
func ForCalculation(meterCode, comment string) Notification {
	return Notification{
		ID:      "mosenergosbyt_calculate_indications_" + meterCode,
		Title:   "Подсчёт начислений - №" + meterCode,
		Message: comment,
	}
}

var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ApplyOverrides replaces title, message or id with caller-provided
// templates. Templates may reference event data as {key}; unknown keys are
// left as written. This is a PURE function.
func ApplyOverrides(n Notification, overrides map[string]string, data map[string]any) Notification {
	for key, tmpl := range overrides {
		value := Format(tmpl, data)
		switch key {
		case KeyTitle:
			n.Title = value
		case KeyMessage:
			n.Message = value
		case KeyID:
			n.ID = value
		}
	}
	return n
}

// Format substitutes {key} placeholders with values from data.
// This is a PURE function.
func Format(tmpl string, data map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := data[key]
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
}

// ValidOverrideKey reports whether key may appear in an override mapping.
func ValidOverrideKey(key string) bool {
	switch key {
	case KeyTitle, KeyMessage, KeyID:
		return true
	default:
		return false
	}
}
