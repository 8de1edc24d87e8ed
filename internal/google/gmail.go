package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

const gmailPageSize = 100

// GmailProvider implements syncer.Provider over the Gmail API. Mail syncs by
// ISO week.
type GmailProvider struct {
	oauth   *OAuth
	backoff Backoff
	log     *zap.SugaredLogger
}

func NewGmailProvider(oauth *OAuth, log *zap.SugaredLogger) *GmailProvider {
	return &GmailProvider{oauth: oauth, backoff: DefaultBackoff(), log: log}
}

func (p *GmailProvider) Name() models.Provider  { return models.ProviderGmail }
func (p *GmailProvider) Kind() syncer.PeriodKind { return syncer.PeriodWeek }

func (p *GmailProvider) service(ctx context.Context, userID string) (*gmail.Service, error) {
	token, err := p.oauth.ValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// withService routes fn through the retry policy, rebuilding the service
// after a 401-triggered refresh.
func (p *GmailProvider) withService(ctx context.Context, userID string, fn func(*gmail.Service) error) error {
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

// ListIDs returns one page of message ids for the window. The query filters
// out the noise categories so promotional and automated mail never enters
// the pipeline.
func (p *GmailProvider) ListIDs(ctx context.Context, userID string, w syncer.Window, pageToken string) ([]string, string, error) {
	query := fmt.Sprintf("-category:promotions -category:social -in:spam -in:trash -in:draft after:%d before:%d",
		w.Start.Unix(), w.End.Unix())

	var (
		ids  []string
		next string
	)
	err := p.withService(ctx, userID, func(svc *gmail.Service) error {
		listCall := svc.Users.Messages.List("me").Q(query).MaxResults(gmailPageSize).Context(ctx)
		if pageToken != "" {
			listCall = listCall.PageToken(pageToken)
		}
		resp, err := listCall.Do()
		if err != nil {
			return err
		}

		ids = ids[:0]
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		next = resp.NextPageToken
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return ids, next, nil
}

// FetchHeader fetches metadata-only fields for one message.
func (p *GmailProvider) FetchHeader(ctx context.Context, userID, itemID string) (*models.Item, error) {
	var item *models.Item
	err := p.withService(ctx, userID, func(svc *gmail.Service) error {
		msg, err := svc.Users.Messages.Get("me", itemID).
			Format("metadata").
			MetadataHeaders("Subject", "From", "To", "Cc").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		item = parseGmailHeader(userID, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FetchBody fetches the full message and extracts decoded text and HTML
// bodies plus an attachment-presence flag.
func (p *GmailProvider) FetchBody(ctx context.Context, userID, itemID string) (*syncer.Body, error) {
	var body *syncer.Body
	err := p.withService(ctx, userID, func(svc *gmail.Service) error {
		msg, err := svc.Users.Messages.Get("me", itemID).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}

		text, html := extractBodies(msg.Payload)
		body = &syncer.Body{
			Text:           text,
			HTML:           html,
			HasAttachments: hasAttachments(msg.Payload),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// parseGmailHeader maps a metadata-format message into an item row
func parseGmailHeader(userID string, msg *gmail.Message) *models.Item {
	item := &models.Item{
		UserID:   userID,
		ItemID:   msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.InternalDate > 0 {
		item.ItemTimestamp = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload != nil {
		var recipients []string
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				item.Subject = header.Value
			case "From":
				item.Sender = header.Value
			case "To", "Cc":
				recipients = append(recipients, splitAddrs(header.Value)...)
			}
		}
		item.Recipients = recipients
	}
	return item
}

// extractBodies walks the MIME tree and returns the first text/plain and
// text/html parts, decoded.
func extractBodies(payload *gmail.MessagePart) (string, string) {
	var textPlain, textHTML string
	if payload == nil {
		return "", ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeBody(payload.Body.Data); err == nil {
			switch payload.MimeType {
			case "text/plain":
				textPlain = decoded
			case "text/html":
				textHTML = decoded
			}
		}
	}

	extractBodiesFromParts(payload.Parts, &textPlain, &textHTML)
	return textPlain, textHTML
}

func extractBodiesFromParts(parts []*gmail.MessagePart, textPlain, textHTML *string) {
	for _, part := range parts {
		if part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBody(part.Body.Data); err == nil {
				if part.MimeType == "text/plain" && *textPlain == "" {
					*textPlain = decoded
				} else if part.MimeType == "text/html" && *textHTML == "" {
					*textHTML = decoded
				}
			}
		}

		if len(part.Parts) > 0 {
			extractBodiesFromParts(part.Parts, textPlain, textHTML)
		}
	}
}

// hasAttachments reports whether any part of the MIME tree carries a
// filename
func hasAttachments(payload *gmail.MessagePart) bool {
	if payload == nil {
		return false
	}
	for _, part := range payload.Parts {
		if part.Filename != "" && part.Body != nil {
			return true
		}
		if len(part.Parts) > 0 && hasAttachments(part) {
			return true
		}
	}
	return false
}

// decodeBody handles both padded and unpadded base64url payloads
func decodeBody(data string) (string, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded), nil
	}
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// splitAddrs parses comma-separated email addresses
func splitAddrs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
