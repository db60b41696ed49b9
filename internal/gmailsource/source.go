// Package gmailsource implements the message source against the Gmail API.
package gmailsource

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mizuno-h/cardwatch/internal/model"
)

// DefaultMaxResults caps candidate lists when the caller passes no limit.
const DefaultMaxResults = 500

// Source reads messages from a single Gmail account.
type Source struct {
	svc    *gmail.Service
	userID string
}

// New creates a Gmail-backed message source authenticated with the given
// token. The userID "me" addresses the authenticated account.
func New(ctx context.Context, config OAuth2Config, token *oauth2.Token) (*Source, error) {
	client := config.oauthConfig().Client(ctx, token)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Source{svc: svc, userID: "me"}, nil
}

// Search lists message IDs matching the query, newest first, up to
// maxResults. Gmail returns a stable ordering for a given query, which the
// batch controller relies on for cursor resumption.
func (s *Source) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var (
		ids       []string
		pageToken string
	)
	for {
		call := s.svc.Users.Messages.List(s.userID).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		remaining := maxResults - len(ids)
		if remaining < 100 {
			call = call.MaxResults(int64(remaining))
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
			if len(ids) >= maxResults {
				return ids, nil
			}
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Fetch retrieves one message in full and flattens it to an InboundMessage.
func (s *Source) Fetch(ctx context.Context, id string) (*model.InboundMessage, error) {
	m, err := s.svc.Users.Messages.Get(s.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	msg := &model.InboundMessage{
		ID:      m.Id,
		Snippet: m.Snippet,
		Date:    time.UnixMilli(m.InternalDate),
	}

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "From":
				msg.From = parseAddress(h.Value)
			case "Subject":
				msg.Subject = h.Value
			}
		}
		msg.Body = extractBody(m.Payload)
	}
	if msg.Body == "" {
		msg.Body = m.Snippet
	}

	return msg, nil
}

// parseAddress reduces a From header to its address part when parseable.
func parseAddress(raw string) string {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return raw
	}
	return addr.Address
}

// extractBody walks the MIME tree depth-first, preferring text/plain parts
// over text/html. HTML bodies are crudely de-tagged: the classifier only
// needs labels and numbers, not layout.
func extractBody(part *gmail.MessagePart) string {
	plain, html := collectBodies(part)
	if plain != "" {
		return plain
	}
	return stripTags(html)
}

func collectBodies(part *gmail.MessagePart) (plain, html string) {
	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data)
		if err == nil {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain"):
				plain = string(data)
			case strings.HasPrefix(part.MimeType, "text/html"):
				html = string(data)
			}
		}
	}

	for _, child := range part.Parts {
		p, h := collectBodies(child)
		if plain == "" {
			plain = p
		}
		if html == "" {
			html = h
		}
	}
	return plain, html
}

func stripTags(s string) string {
	var (
		b     strings.Builder
		inTag bool
	)
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
