package google

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

const calendarPageSize = 250

// CalendarProvider implements syncer.Provider over the Calendar API.
// Calendar syncs by month; the "noise filter" here is skipping cancelled
// events, since Calendar has no category query.
type CalendarProvider struct {
	oauth   *OAuth
	backoff Backoff
	log     *zap.SugaredLogger
}

func NewCalendarProvider(oauth *OAuth, log *zap.SugaredLogger) *CalendarProvider {
	return &CalendarProvider{oauth: oauth, backoff: DefaultBackoff(), log: log}
}

func (p *CalendarProvider) Name() models.Provider   { return models.ProviderCalendar }
func (p *CalendarProvider) Kind() syncer.PeriodKind { return syncer.PeriodMonth }

func (p *CalendarProvider) service(ctx context.Context, userID string) (*calendar.Service, error) {
	token, err := p.oauth.ValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

func (p *CalendarProvider) withService(ctx context.Context, userID string, fn func(*calendar.Service) error) error {
	svc, err := p.service(ctx, userID)
	if err != nil {
		return err
	}

	refresh := func(rctx context.Context) error {
		if _, err := p.oauth.ForceRefresh(rctx, userID); err != nil {
			return err
		}
		rebuilt, err := p.service(rctx, userID)
		if err != nil {
			return err
		}
		svc = rebuilt
		return nil
	}

	return call(ctx, p.backoff, refresh, func() error { return fn(svc) })
}

// ListIDs returns one page of event ids for the window, skipping cancelled
// events.
func (p *CalendarProvider) ListIDs(ctx context.Context, userID string, w syncer.Window, pageToken string) ([]string, string, error) {
	var (
		ids  []string
		next string
	)
	err := p.withService(ctx, userID, func(svc *calendar.Service) error {
		listCall := svc.Events.List("primary").
			SingleEvents(true).
			ShowDeleted(false).
			TimeMin(w.Start.Format(time.RFC3339)).
			TimeMax(w.End.Format(time.RFC3339)).
			MaxResults(calendarPageSize).
			Context(ctx)
		if pageToken != "" {
			listCall = listCall.PageToken(pageToken)
		}
		resp, err := listCall.Do()
		if err != nil {
			return err
		}

		ids = ids[:0]
		for _, ev := range resp.Items {
			if ev.Status == "cancelled" {
				continue
			}
			ids = append(ids, ev.Id)
		}
		next = resp.NextPageToken
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return ids, next, nil
}

// FetchHeader maps one event onto the shared item shape: organizer as
// sender, attendees as recipients, summary as subject.
func (p *CalendarProvider) FetchHeader(ctx context.Context, userID, itemID string) (*models.Item, error) {
	var item *models.Item
	err := p.withService(ctx, userID, func(svc *calendar.Service) error {
		ev, err := svc.Events.Get("primary", itemID).Context(ctx).Do()
		if err != nil {
			return err
		}
		item = parseEventHeader(userID, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FetchBody returns the event description as the body content.
func (p *CalendarProvider) FetchBody(ctx context.Context, userID, itemID string) (*syncer.Body, error) {
	var body *syncer.Body
	err := p.withService(ctx, userID, func(svc *calendar.Service) error {
		ev, err := svc.Events.Get("primary", itemID).Context(ctx).Do()
		if err != nil {
			return err
		}
		body = &syncer.Body{
			Text:           ev.Description,
			HasAttachments: len(ev.Attachments) > 0,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func parseEventHeader(userID string, ev *calendar.Event) *models.Item {
	item := &models.Item{
		UserID:        userID,
		ItemID:        ev.Id,
		ThreadID:      ev.RecurringEventId,
		Subject:       ev.Summary,
		Snippet:       snippet(ev.Description),
		ItemTimestamp: eventStart(ev),
		IsPrivate:     ev.Visibility == "private" || ev.Visibility == "confidential",
	}
	if ev.Organizer != nil {
		item.Sender = ev.Organizer.Email
	}
	var attendees []string
	for _, a := range ev.Attendees {
		if a.Email != "" {
			attendees = append(attendees, a.Email)
		}
	}
	item.Recipients = attendees
	return item
}

// eventStart handles both timed and all-day events
func eventStart(ev *calendar.Event) time.Time {
	if ev.Start == nil {
		return time.Time{}
	}
	if ev.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			return t.UTC()
		}
	}
	if ev.Start.Date != "" {
		if t, err := time.Parse("2006-01-02", ev.Start.Date); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func snippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so a multi-byte character is not split
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
