package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/calmirror/backend/internal/storage/models"
)

const dateLayout = "2006-01-02"

// GoogleClient implements Client against the Google Calendar API.
type GoogleClient struct {
	svc *calendar.Service
}

// NewGoogleClient builds an authenticated client from OAuth client
// credentials and a previously stored token file. Token acquisition and
// refresh UI are handled externally; this consumes the capability.
func NewGoogleClient(ctx context.Context, clientID, clientSecret, tokenFile string) (*GoogleClient, error) {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     google.Endpoint,
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("loading token from %s: %w", tokenFile, err)
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}

	return &GoogleClient{svc: svc}, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// ListCalendars returns non-hidden calendars with reader-or-better access.
func (c *GoogleClient) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	var calendars []models.Calendar

	pageToken := ""
	for {
		call := c.svc.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, wrap("list calendars", err)
		}

		for _, item := range list.Items {
			if item.Hidden || item.Deleted || item.AccessRole == models.AccessRoleFreeBusy {
				continue
			}
			calendars = append(calendars, models.Calendar{
				ID:         item.Id,
				Summary:    item.Summary,
				Color:      item.BackgroundColor,
				AccessRole: item.AccessRole,
				Primary:    item.Primary,
				Visible:    true,
			})
		}

		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return calendars, nil
}

// ListEvents lists one calendar's events, windowed or by sync token,
// following pagination to completion.
func (c *GoogleClient) ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*ListResult, error) {
	result := &ListResult{}

	pageToken := ""
	for {
		call := c.svc.Events.List(calendarID).Context(ctx).
			SingleEvents(true).
			ShowDeleted(true).
			MaxResults(250)

		if opts.SyncToken != "" {
			call = call.SyncToken(opts.SyncToken)
		} else {
			call = call.
				TimeMin(opts.TimeMin.Format(time.RFC3339)).
				TimeMax(opts.TimeMax.Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, wrap("list events", err)
		}

		for _, item := range list.Items {
			result.Events = append(result.Events, toEvent(item, calendarID))
		}

		result.NextSyncToken = list.NextSyncToken
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

// CreateEvent creates an event remotely.
func (c *GoogleClient) CreateEvent(ctx context.Context, calendarID string, input models.EventInput) (string, string, error) {
	created, err := c.svc.Events.Insert(calendarID, fromInput(input)).Context(ctx).Do()
	if err != nil {
		return "", "", wrap("create event", err)
	}
	return created.Id, created.Etag, nil
}

// UpdateEvent overwrites the user-editable fields of a remote event.
func (c *GoogleClient) UpdateEvent(ctx context.Context, calendarID, remoteID string, input models.EventInput) (string, error) {
	updated, err := c.svc.Events.Patch(calendarID, remoteID, fromInput(input)).Context(ctx).Do()
	if err != nil {
		return "", wrap("update event", err)
	}
	return updated.Etag, nil
}

// DeleteEvent deletes a remote event.
func (c *GoogleClient) DeleteEvent(ctx context.Context, calendarID, remoteID string) error {
	if err := c.svc.Events.Delete(calendarID, remoteID).Context(ctx).Do(); err != nil {
		return wrap("delete event", err)
	}
	return nil
}

// RSVP sets the authenticated user's response on a remote event.
func (c *GoogleClient) RSVP(ctx context.Context, calendarID, remoteID, response string) error {
	event, err := c.svc.Events.Get(calendarID, remoteID).Context(ctx).Do()
	if err != nil {
		return wrap("rsvp", err)
	}

	for _, a := range event.Attendees {
		if a.Self {
			a.ResponseStatus = response
		}
	}

	patch := &calendar.Event{Attendees: event.Attendees}
	if _, err := c.svc.Events.Patch(calendarID, remoteID, patch).Context(ctx).Do(); err != nil {
		return wrap("rsvp", err)
	}
	return nil
}

// GetEvent fetches a single remote event.
func (c *GoogleClient) GetEvent(ctx context.Context, calendarID, remoteID string) (*models.Event, error) {
	item, err := c.svc.Events.Get(calendarID, remoteID).Context(ctx).Do()
	if err != nil {
		return nil, wrap("get event", err)
	}
	ev := toEvent(item, calendarID)
	return &ev, nil
}

// FreeBusy returns busy intervals per calendar for the given window.
func (c *GoogleClient) FreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) (map[string][]BusyInterval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
	}
	for _, id := range calendarIDs {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: id})
	}

	resp, err := c.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, wrap("free/busy", err)
	}

	busy := make(map[string][]BusyInterval, len(resp.Calendars))
	for id, cal := range resp.Calendars {
		var intervals []BusyInterval
		for _, period := range cal.Busy {
			start, _ := time.Parse(time.RFC3339, period.Start)
			end, _ := time.Parse(time.RFC3339, period.End)
			intervals = append(intervals, BusyInterval{Start: start, End: end})
		}
		busy[id] = intervals
	}

	return busy, nil
}

// fromInput converts the user-editable fields to the provider's event shape.
func fromInput(input models.EventInput) *calendar.Event {
	gev := &calendar.Event{
		Summary:     input.Title,
		Description: input.Description,
		Location:    input.Location,
	}

	if input.AllDay {
		gev.Start = &calendar.EventDateTime{Date: input.Start.Format(dateLayout)}
		gev.End = &calendar.EventDateTime{Date: input.End.Format(dateLayout)}
	} else {
		gev.Start = &calendar.EventDateTime{DateTime: input.Start.Format(time.RFC3339)}
		gev.End = &calendar.EventDateTime{DateTime: input.End.Format(time.RFC3339)}
	}

	for _, email := range input.Attendees {
		gev.Attendees = append(gev.Attendees, &calendar.EventAttendee{Email: email})
	}

	return gev
}

// toEvent converts a provider event record to the internal model. Cancelled
// records from incremental feeds can arrive as bare tombstones (no times);
// the status still carries through so callers can delete the local copy.
func toEvent(item *calendar.Event, calendarID string) models.Event {
	remoteID := item.Id
	ev := models.Event{
		RemoteID:       &remoteID,
		CalendarID:     calendarID,
		Title:          item.Summary,
		Description:    item.Description,
		Location:       item.Location,
		Status:         item.Status,
		RecurrenceRule: strings.Join(item.Recurrence, "\n"),
		ETag:           item.Etag,
	}

	if item.RecurringEventId != "" {
		parent := item.RecurringEventId
		ev.RecurringEventID = &parent
	}

	ev.Start, ev.AllDay = parseEventTime(item.Start)
	ev.End, _ = parseEventTime(item.End)

	if item.Organizer != nil {
		ev.OrganizerEmail = item.Organizer.Email
		ev.OrganizerSelf = item.Organizer.Self
	}

	for _, a := range item.Attendees {
		if a.Self {
			ev.SelfResponse = a.ResponseStatus
		}
		ev.Attendees = append(ev.Attendees, models.Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
			Self:           a.Self,
			Organizer:      a.Organizer,
			Optional:       a.Optional,
		})
	}

	if item.ConferenceData != nil {
		for _, ep := range item.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				ev.ConferenceURL = ep.Uri
				break
			}
		}
	}
	if item.HangoutLink != "" && ev.ConferenceURL == "" {
		ev.ConferenceURL = item.HangoutLink
	}

	if len(item.Attachments) > 0 {
		if data, err := json.Marshal(item.Attachments); err == nil {
			ev.Attachments = string(data)
		}
	}
	if item.Reminders != nil {
		if data, err := json.Marshal(item.Reminders); err == nil {
			ev.Reminders = string(data)
		}
	}

	return ev
}

func parseEventTime(edt *calendar.EventDateTime) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.Date != "" {
		t, _ := time.Parse(dateLayout, edt.Date)
		return t, true
	}
	t, _ := time.Parse(time.RFC3339, edt.DateTime)
	return t, false
}
