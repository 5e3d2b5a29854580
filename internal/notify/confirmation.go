package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/booking"
)

const testDriveDuration = 45 * time.Minute

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; background-color: #f5f5f5; margin: 0; }
    .container { max-width: 600px; margin: 20px auto; background-color: #fff; border-radius: 8px; overflow: hidden; }
    .header { background: #1a56db; color: #fff; padding: 30px 20px; text-align: center; }
    .content { padding: 30px 20px; }
    .details { background-color: #f8f9fa; border-left: 4px solid #1a56db; padding: 15px; margin: 20px 0; }
    .label { font-weight: 600; color: #555; display: block; }
    .note { background-color: #e3f2fd; border: 1px solid #1a56db; padding: 12px; font-size: 14px; }
    .footer { background-color: #f8f9fa; padding: 20px; text-align: center; font-size: 12px; color: #999; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>Test Drive Scheduled</h1></div>
    <div class="content">
      <p>Hi {{.Name}},</p>
      <p>Great! We've confirmed your test drive appointment. Here are the details:</p>
      <div class="details">
        <p><span class="label">Vehicle</span>{{.Vehicle}}</p>
        <p><span class="label">Date &amp; Time</span>{{.When}}</p>
        <p><span class="label">Location</span>{{.Location}}</p>
        <p><span class="label">Your Contact</span>{{.Phone}}</p>
      </div>
      <div class="note">
        <strong>Calendar Invite:</strong> We've attached a calendar file (.ics) to this email. Open it to add this appointment to your calendar app.
      </div>
      <p>If you need to reschedule or cancel your appointment, please contact us directly.</p>
      <p><strong>See you soon!</strong></p>
      <p>The Toyotron Team</p>
    </div>
    <div class="footer">
      <p>This is an automated message.</p>
    </div>
  </div>
</body>
</html>
`))

type confirmationView struct {
	Name     string
	Vehicle  string
	When     string
	Location string
	Phone    string
}

// Composer turns a booking confirmation into an email with a calendar
// invite attached.
type Composer struct {
	organizerName  string
	organizerEmail string
	zone           *time.Location
	now            func() time.Time
}

func NewComposer(organizerEmail string, zone *time.Location) *Composer {
	if zone == nil {
		zone = time.Local
	}
	if organizerEmail == "" {
		organizerEmail = "bookings@toyotron.local"
	}
	return &Composer{
		organizerName:  "Toyotron Test Drive",
		organizerEmail: organizerEmail,
		zone:           zone,
		now:            time.Now,
	}
}

func (c *Composer) Compose(conf booking.Confirmation) (Message, error) {
	vehicle := conf.VehicleTitle()
	start := conf.Start.In(c.zone)
	where := conf.Location.Display()

	var html bytes.Buffer
	err := confirmationTmpl.Execute(&html, confirmationView{
		Name:     conf.ContactName,
		Vehicle:  vehicle,
		When:     start.Format("Monday, January 2, 2006 at 03:04 PM MST"),
		Location: where,
		Phone:    conf.ContactPhone,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render confirmation email: %w", err)
	}

	ics := BuildICS(Event{
		UID:            fmt.Sprintf("test-drive-%s@toyotron.local", conf.BookingID),
		Title:          "Test Drive: " + vehicle,
		Description:    fmt.Sprintf("Test drive appointment for %s. Please arrive 10 minutes early.", vehicle),
		Location:       where,
		Start:          conf.Start,
		End:            conf.Start.Add(testDriveDuration),
		AttendeeName:   conf.ContactName,
		AttendeeEmail:  conf.ContactEmail,
		OrganizerName:  c.organizerName,
		OrganizerEmail: c.organizerEmail,
		Stamp:          c.now(),
	})

	return Message{
		To:      []string{conf.ContactEmail},
		Subject: "Test Drive Confirmed: " + vehicle,
		HTML:    html.String(),
		Attachments: []Attachment{{
			Filename:    ICSFilename(conf.VehicleMake+" "+conf.VehicleModel, start),
			Content:     ics,
			ContentType: "text/calendar",
		}},
	}, nil
}
