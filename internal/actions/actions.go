package actions

import (
	"time"

	"spokehub/internal/actions/calendar"
	"spokehub/internal/actions/google"
	"spokehub/internal/actions/mail"
	"spokehub/internal/actions/todo"
	"spokehub/internal/spoke"
)

// Deps are the collaborators the built-in integrations need.
type Deps struct {
	Todos    todo.Repository
	Google   google.ClientSource
	Location *time.Location

	// API base URL overrides; empty in production.
	CalendarEndpoint string
	GmailEndpoint    string
}

// Catalog lists every integration compiled into the binary, keyed by
// integration_name. Descriptor directories must use the same names.
func Catalog(d Deps) spoke.Catalog {
	c := spoke.Catalog{}
	if d.Todos != nil {
		c[todo.Integration] = todo.NewFactory(d.Todos, d.Location)
	}
	if d.Google != nil {
		c[calendar.Integration] = calendar.NewFactory(d.Google, d.Location, d.CalendarEndpoint)
		c[mail.Integration] = mail.NewFactory(d.Google, d.GmailEndpoint)
	}
	return c
}
