package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

// Context is the data a notification is rendered from. Handoff is nil for
// match-confirmed events.
type Context struct {
	Lost    *model.LostItem
	Found   *model.FoundItem
	MatchID int64
	Handoff *model.Handoff
}

type message struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"when": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("Jan 02, 2006 at 03:04 PM")
	},
	"fallback": func(s, fallback string) string {
		if strings.TrimSpace(s) == "" {
			return fallback
		}
		return s
	},
}

const handoffDetails = `{{with .Handoff}}{{if .ScheduledTime}}
When: {{when .ScheduledTime}}{{end}}{{if .Location}}
Where: {{.Location}}{{end}}{{if .Notes}}
Notes: {{.Notes}}{{end}}{{if .AssignedTo}}
Assigned staff: {{.AssignedTo}}{{end}}
Current status: {{.Status}}{{end}}`

const signature = `

-- Campus Lost & Found`

var messages = map[Kind]message{
	KindMatchConfirmed: parse(
		`Lost & Found match confirmed: {{.Lost.Title}}`,
		`Hello {{.Name}},

A match was confirmed between the lost item "{{.Lost.Title}}" and an item found at {{fallback .Found.Location "an unrecorded location"}}.

Lost item owner: {{fallback .Lost.OwnerName "unknown"}} ({{.Lost.OwnerEmail}})
Found item reporter: {{fallback .Found.ReporterName "unknown"}} ({{.Found.ReporterEmail}})

Staff will be in touch with the next handoff steps.`+signature),
	KindHandoffPending: parse(
		`Handoff pending: {{.Lost.Title}}`,
		`Hello {{.Name}},

A handoff for "{{.Lost.Title}}" has been opened and is waiting to be scheduled.
`+handoffDetails+signature),
	KindHandoffScheduled: parse(
		`Handoff scheduled: {{.Lost.Title}}`,
		`Hello {{.Name}},

The handoff for "{{.Lost.Title}}" has been scheduled.
`+handoffDetails+`
{{if .IsOwner}}
Please bring a valid photo ID and any proof of ownership.{{else}}
Please bring the item to the handoff or leave it at the Lost & Found desk.{{end}}`+signature),
	KindHandoffCompleted: parse(
		`Handoff completed: {{.Lost.Title}}`,
		`Hello {{.Name}},

{{if .IsOwner}}"{{.Lost.Title}}" has been returned to you.{{else}}Thanks to you, "{{.Lost.Title}}" is back with its owner.{{end}}
{{with .Handoff}}{{if .CompletedAt}}
Completed: {{when .CompletedAt}}{{end}}{{end}}`+signature),
	KindHandoffCancelled: parse(
		`Handoff cancelled: {{.Lost.Title}}`,
		`Hello {{.Name}},

The handoff for "{{.Lost.Title}}" has been cancelled.
{{with .Handoff}}
Reason: {{.CancellationReason}}{{end}}

Staff will contact you if it is rescheduled.`+signature),
	KindHandoffUpdated: parse(
		`Handoff updated: {{.Lost.Title}}`,
		`Hello {{.Name}},

Details of the handoff for "{{.Lost.Title}}" have changed.
`+handoffDetails+signature),
}

func parse(subject, body string) message {
	return message{
		subject: template.Must(template.New("subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New("body").Funcs(funcs).Parse(body)),
	}
}

type recipientData struct {
	Context
	Name    string
	IsOwner bool
}

// Participants renders one event per distinct, non-blank participant address:
// the lost item's owner and the found item's reporter.
func Participants(kind Kind, c Context) ([]Event, error) {
	msg, ok := messages[kind]
	if !ok {
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
	if c.Lost == nil || c.Found == nil {
		return nil, fmt.Errorf("rendering %s: both items are required", kind)
	}

	type recipient struct {
		address string
		name    string
		role    Role
	}
	candidates := []recipient{
		{c.Lost.OwnerEmail, c.Lost.OwnerName, RoleOwner},
		{c.Found.ReporterEmail, c.Found.ReporterName, RoleReporter},
	}

	seen := map[string]bool{}
	var events []Event
	for _, r := range candidates {
		address := strings.TrimSpace(r.address)
		key := strings.ToLower(address)
		if address == "" || seen[key] {
			continue
		}
		seen[key] = true

		data := recipientData{Context: c, Name: r.name, IsOwner: r.role == RoleOwner}
		if strings.TrimSpace(data.Name) == "" {
			data.Name = "there"
		}

		var subject, body strings.Builder
		if err := msg.subject.Execute(&subject, data); err != nil {
			return nil, fmt.Errorf("rendering %s subject: %w", kind, err)
		}
		if err := msg.body.Execute(&body, data); err != nil {
			return nil, fmt.Errorf("rendering %s body: %w", kind, err)
		}

		e := newEvent(kind)
		e.Recipient = address
		e.RecipientRole = r.role
		e.Subject = subject.String()
		e.Body = body.String()
		e.MatchID = c.MatchID
		e.LostItemID = c.Lost.ID
		e.FoundItemID = c.Found.ID
		if c.Handoff != nil {
			e.HandoffID = c.Handoff.ID
			if e.MatchID == 0 {
				e.MatchID = c.Handoff.MatchID
			}
		}
		events = append(events, e)
	}
	return events, nil
}
