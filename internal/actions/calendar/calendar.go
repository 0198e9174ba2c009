// Package calendar is the google_calendar integration.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"spokehub/internal/actions/google"
	"spokehub/internal/spoke"
	"spokehub/internal/utils"
)

const (
	Integration = "google_calendar"
	service     = "Google Calendar"

	defaultCalendarID = "primary"
	defaultMaxResults = 100
)

type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	AllDay      bool      `json:"all_day,omitempty"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Recurrence  []string  `json:"recurrence,omitempty"`
	HTMLLink    string    `json:"html_link,omitempty"`
}

type Handler struct {
	svc *gcal.Service
	loc *time.Location
}

var table = spoke.Table[*Handler]{
	"get_calendar_events":   (*Handler).getEvents,
	"create_calendar_event": (*Handler).createEvent,
	"update_calendar_event": (*Handler).updateEvent,
	"delete_calendar_event": (*Handler).deleteEvent,
}

// NewFactory builds calendar handlers for principals. endpoint overrides the
// API base URL and is empty in production.
func NewFactory(clients google.ClientSource, loc *time.Location, endpoint string) spoke.Factory {
	if loc == nil {
		loc = time.UTC
	}
	return spoke.Factory{
		Actions: table.Actions(),
		New: func(ctx context.Context, principal string) (spoke.Handler, error) {
			hc, err := clients.Client(ctx, principal)
			if err != nil {
				return nil, err
			}
			opts := []option.ClientOption{option.WithHTTPClient(hc)}
			if endpoint != "" {
				opts = append(opts, option.WithEndpoint(endpoint))
			}
			svc, err := gcal.NewService(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("calendar service: %w", err)
			}
			return &Handler{svc: svc, loc: loc}, nil
		},
	}
}

func (h *Handler) SupportedActions() []string { return table.Actions() }

func (h *Handler) Execute(ctx context.Context, actionType string, params spoke.Params) spoke.Result {
	return table.Dispatch(h, ctx, actionType, params)
}

func (h *Handler) getEvents(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	start, err := utils.GetTimePayload(p, "start_date", h.loc)
	if err != nil {
		return nil, nil, err
	}
	end, err := utils.GetTimePayload(p, "end_date", h.loc)
	if err != nil {
		return nil, nil, err
	}
	if !end.After(start) {
		return nil, nil, spoke.Invalid("end_date must be after start_date")
	}
	calID, err := utils.GetOptionalString(p, "calendar_id", defaultCalendarID)
	if err != nil {
		return nil, nil, err
	}
	maxResults, err := utils.GetOptionalInt(p, "max_results", defaultMaxResults)
	if err != nil {
		return nil, nil, err
	}

	resp, err := h.svc.Events.List(calID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(int64(maxResults)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "")
		return nil, meta, e
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, h.toEvent(item))
	}
	return events, map[string]any{
		"total_events": len(events),
		"period":       fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
	}, nil
}

func (h *Handler) createEvent(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	ev, err := h.eventFromParams(p)
	if err != nil {
		return nil, nil, err
	}
	calID, err := utils.GetOptionalString(p, "calendar_id", defaultCalendarID)
	if err != nil {
		return nil, nil, err
	}

	created, err := h.svc.Events.Insert(calID, ev).Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "")
		return nil, meta, e
	}
	return map[string]any{"event_id": created.Id, "html_link": created.HtmlLink},
		map[string]any{"calendar_id": calID}, nil
}

func (h *Handler) updateEvent(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	eventID, err := utils.GetStringPayload(p, "event_id")
	if err != nil {
		return nil, nil, err
	}
	patch, err := h.eventFromParams(p)
	if err != nil {
		return nil, nil, err
	}
	calID, err := utils.GetOptionalString(p, "calendar_id", defaultCalendarID)
	if err != nil {
		return nil, nil, err
	}

	existing, err := h.svc.Events.Get(calID, eventID).Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "Event not found")
		return nil, meta, e
	}
	existing.Summary = patch.Summary
	existing.Start = patch.Start
	existing.End = patch.End
	if _, ok := p["description"]; ok {
		existing.Description = patch.Description
	}
	if _, ok := p["location"]; ok {
		existing.Location = patch.Location
	}
	if _, ok := p["attendees"]; ok {
		existing.Attendees = patch.Attendees
	}
	if _, ok := p["recurrence"]; ok {
		existing.Recurrence = patch.Recurrence
	}

	updated, err := h.svc.Events.Update(calID, eventID, existing).Context(ctx).Do()
	if err != nil {
		meta, e := google.APIError(service, err, "Event not found")
		return nil, meta, e
	}
	return map[string]any{"event_id": updated.Id, "html_link": updated.HtmlLink},
		map[string]any{"calendar_id": calID}, nil
}

func (h *Handler) deleteEvent(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	eventID, err := utils.GetStringPayload(p, "event_id")
	if err != nil {
		return nil, nil, err
	}
	calID, err := utils.GetOptionalString(p, "calendar_id", defaultCalendarID)
	if err != nil {
		return nil, nil, err
	}
	if err := h.svc.Events.Delete(calID, eventID).Context(ctx).Do(); err != nil {
		meta, e := google.APIError(service, err, "Event not found")
		return nil, meta, e
	}
	return map[string]any{"deleted_event_id": eventID}, map[string]any{"calendar_id": calID}, nil
}

// eventFromParams validates the writable event fields. Nothing is sent until it succeeds.
func (h *Handler) eventFromParams(p spoke.Params) (*gcal.Event, error) {
	summary, err := utils.GetStringPayload(p, "summary")
	if err != nil {
		return nil, err
	}
	start, err := utils.GetTimePayload(p, "start_time", h.loc)
	if err != nil {
		return nil, err
	}
	end, err := utils.GetTimePayload(p, "end_time", h.loc)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, spoke.Invalid("end_time must be after start_time")
	}
	description, err := utils.GetOptionalString(p, "description", "")
	if err != nil {
		return nil, err
	}
	location, err := utils.GetOptionalString(p, "location", "")
	if err != nil {
		return nil, err
	}
	attendees, err := utils.GetStringSlicePayload(p, "attendees")
	if err != nil {
		return nil, err
	}
	recurrence, err := utils.GetStringSlicePayload(p, "recurrence")
	if err != nil {
		return nil, err
	}

	ev := &gcal.Event{
		Summary:     summary,
		Description: description,
		Location:    location,
		Start:       &gcal.EventDateTime{DateTime: start.In(h.loc).Format(time.RFC3339), TimeZone: h.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.In(h.loc).Format(time.RFC3339), TimeZone: h.loc.String()},
		Recurrence:  recurrence,
	}
	for _, email := range attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}
	return ev, nil
}

func (h *Handler) toEvent(item *gcal.Event) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Recurrence:  item.Recurrence,
		HTMLLink:    item.HtmlLink,
	}
	ev.Start, ev.AllDay = h.parseEventTime(item.Start, false)
	ev.End, _ = h.parseEventTime(item.End, true)
	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev
}

// parseEventTime reads dateTime, or the all-day date widened to the day's start or end.
func (h *Handler) parseEventTime(dt *gcal.EventDateTime, endOfDay bool) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err == nil {
			return t, false
		}
	}
	d, err := time.ParseInLocation("2006-01-02", dt.Date, h.loc)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Second)
	}
	return d, true
}
