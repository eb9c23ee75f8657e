package functions

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/m2tx/gemini_chat/internal/chat"
)

// ParseAlarmTime validates a 24h "HH:mm" string.
func ParseAlarmTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("alarm format must be HH:mm")
	}

	hour, errH := strconv.Atoi(parts[0])
	minute, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:mm", s)
	}

	return hour, minute, nil
}

type Alarm struct {
	Time  string `json:"time"`
	Label string `json:"label"`
}

// AlarmBook remembers the alarms handed to the client so a repeat can be
// reported instead of set twice. Alarms are keyed by time of day.
type AlarmBook struct {
	mu     sync.Mutex
	alarms map[string]Alarm
}

func NewAlarmBook() *AlarmBook {
	return &AlarmBook{alarms: make(map[string]Alarm)}
}

// Schedule records a at its time of day. When an alarm already exists at
// that time it is returned with ok false and the book is unchanged.
func (b *AlarmBook) Schedule(a Alarm) (existing Alarm, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, found := b.alarms[a.Time]; found {
		return prev, false
	}
	b.alarms[a.Time] = a
	return a, true
}

// List returns the scheduled alarms ordered by time.
func (b *AlarmBook) List() []Alarm {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Alarm, 0, len(b.alarms))
	for _, a := range b.alarms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// CreateAlarmFunctionDeclaration returns set_alarm. With a nil book every
// valid request is reported as a new alarm.
func CreateAlarmFunctionDeclaration(book *AlarmBook) *chat.FunctionDeclaration {
	return &chat.FunctionDeclaration{
		Name:        "set_alarm",
		Description: "Sets an alarm on the user's phone at a given time of day.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"time": map[string]any{
					"type":        "string",
					"description": "Time of day in 24h HH:mm format, e.g. 07:30",
				},
				"label": map[string]any{
					"type":        "string",
					"description": "Short label shown when the alarm rings",
				},
			},
			"required": []string{"time"},
		},
		ResponseSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":    map[string]any{"type": "string"},
				"time":    map[string]any{"type": "string"},
				"label":   map[string]any{"type": "string"},
				"message": map[string]any{"type": "string"},
			},
		},
		FunctionCall: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			raw, _ := args["time"].(string)
			hour, minute, err := ParseAlarmTime(raw)
			if err != nil {
				return map[string]any{
					"type":    "alarm_invalid",
					"message": err.Error(),
				}, nil
			}

			label, _ := args["label"].(string)
			if strings.TrimSpace(label) == "" {
				label = "Alarm"
			}

			alarm := Alarm{Time: fmt.Sprintf("%02d:%02d", hour, minute), Label: label}
			if book != nil {
				if existing, ok := book.Schedule(alarm); !ok {
					return map[string]any{
						"type":    "alarm_exists",
						"time":    existing.Time,
						"label":   existing.Label,
						"message": fmt.Sprintf("An alarm is already set for %s (%s).", existing.Time, existing.Label),
					}, nil
				}
			}

			return map[string]any{
				"type":  "alarm",
				"time":  alarm.Time,
				"label": alarm.Label,
			}, nil
		},
	}
}
