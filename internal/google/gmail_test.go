package google

import (
	"encoding/base64"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func TestParseGmailHeader(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		Snippet:      "Quick update on enrollment",
		InternalDate: 1704189600000, // 2024-01-02T10:00:00Z
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Enrollment update"},
				{Name: "From", Value: "Alice <alice@school.org>"},
				{Name: "To", Value: "bob@school.org, carol@school.org"},
				{Name: "Cc", Value: "dan@school.org"},
			},
		},
	}

	item := parseGmailHeader("u1", msg)

	if item.ItemID != "m1" || item.ThreadID != "t1" {
		t.Errorf("ids = %s/%s", item.ItemID, item.ThreadID)
	}
	if item.Subject != "Enrollment update" {
		t.Errorf("subject = %q", item.Subject)
	}
	if item.Sender != "Alice <alice@school.org>" {
		t.Errorf("sender = %q", item.Sender)
	}
	if len(item.Recipients) != 3 {
		t.Errorf("recipients = %v, want To plus Cc", item.Recipients)
	}
	want := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if !item.ItemTimestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", item.ItemTimestamp, want)
	}
}

func TestParseGmailHeaderWithoutPayload(t *testing.T) {
	item := parseGmailHeader("u1", &gmail.Message{Id: "m1"})
	if item.ItemID != "m1" || item.Sender != "" || len(item.Recipients) != 0 {
		t.Errorf("unexpected fields on bare message: %+v", item)
	}
	if !item.ItemTimestamp.IsZero() {
		t.Errorf("timestamp = %v, want zero", item.ItemTimestamp)
	}
}

func TestExtractBodiesFromMultipart(t *testing.T) {
	encode := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain text")}},
			{
				MimeType: "multipart/related",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>html</p>")}},
				},
			},
		},
	}

	text, html := extractBodies(payload)
	if text != "plain text" {
		t.Errorf("text = %q", text)
	}
	if html != "<p>html</p>" {
		t.Errorf("html = %q", html)
	}
}

func TestExtractBodiesSinglePart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("just text"))},
	}
	text, html := extractBodies(payload)
	if text != "just text" || html != "" {
		t.Errorf("got (%q, %q)", text, html)
	}
}

func TestHasAttachments(t *testing.T) {
	with := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{}},
			{Filename: "report.pdf", Body: &gmail.MessagePartBody{AttachmentId: "a1"}},
		},
	}
	if !hasAttachments(with) {
		t.Error("attachment not detected")
	}

	without := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{}},
		},
	}
	if hasAttachments(without) {
		t.Error("false positive on plain message")
	}
}

func TestDecodeBodyHandlesBothEncodings(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte("hello"))
	padded := base64.URLEncoding.EncodeToString([]byte("hello"))

	for _, data := range []string{raw, padded} {
		got, err := decodeBody(data)
		if err != nil || got != "hello" {
			t.Errorf("decodeBody(%q) = %q, %v", data, got, err)
		}
	}

	if _, err := decodeBody("!!not base64!!"); err == nil {
		t.Error("expected error on invalid input")
	}
}

func TestSplitAddrs(t *testing.T) {
	got := splitAddrs("a@b.org, Carol <c@d.org> ,, e@f.org")
	if len(got) != 3 || got[1] != "Carol <c@d.org>" {
		t.Errorf("splitAddrs = %v", got)
	}
	if splitAddrs("") != nil {
		t.Error("want nil for empty header")
	}
}
