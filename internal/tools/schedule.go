package tools

import (
	"context"
	"encoding/json"
	"net/mail"

	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/google/jsonschema-go/jsonschema"
)

const ScheduleTestDriveName = "scheduleTestDrive"

// Scheduler books a test drive for the user carried in ctx.
type Scheduler interface {
	Schedule(ctx context.Context, in booking.ScheduleInput) booking.ScheduleResult
}

type ScheduleTestDrive struct {
	scheduler Scheduler
}

func NewScheduleTestDrive(s Scheduler) *ScheduleTestDrive {
	return &ScheduleTestDrive{scheduler: s}
}

func (t *ScheduleTestDrive) Name() string { return ScheduleTestDriveName }

func (t *ScheduleTestDrive) Description() string {
	return "Schedule a test drive for a vehicle the user picked from searchToyotaTrims results. Only call this " +
		"after the user explicitly confirms the vehicle, date and location. The user must be signed in; contact " +
		"details default to the user's profile."
}

func (t *ScheduleTestDrive) Schema() *jsonschema.Schema {
	return object([]string{"trimId", "preferredDate"}, map[string]*jsonschema.Schema{
		"trimId":        integer("The trim_id of the vehicle to schedule a test drive for (required)", bound(1), nil),
		"preferredDate": str("Preferred date in ISO format (YYYY-MM-DD) or relative format like 'tomorrow', 'next week'"),
		"preferredTime": str("Preferred time in HH:MM format (24-hour) or relative like 'morning', 'afternoon', 'evening'"),
		"location":      str("Preferred dealership location (downtown, north, or south)"),
		"contactName":   str("Contact name (will use user's profile if not provided)"),
		"contactEmail":  email("Contact email (will use user's profile if not provided)"),
		"contactPhone":  str("Contact phone number (will use user's profile if not provided)"),
	})
}

func (t *ScheduleTestDrive) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var in booking.ScheduleInput
	if err := json.Unmarshal(args, &in); err != nil {
		return ErrorResult(booking.ScheduleResult{Error: InvalidParameters + ": " + err.Error()}), nil
	}
	if in.ContactEmail != "" {
		if _, err := mail.ParseAddress(in.ContactEmail); err != nil {
			return ErrorResult(booking.ScheduleResult{Error: "contactEmail must be a valid email address"}), nil
		}
	}

	res := t.scheduler.Schedule(ctx, in)
	out, err := JSONResult(res)
	if err != nil {
		return ToolResult{}, err
	}
	out.IsError = !res.Success
	return out, nil
}
