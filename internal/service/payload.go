package service

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// MaxActions is the number of action buttons browsers reliably render.
const MaxActions = 2

type PayloadData struct {
	CampaignID     string `json:"campaignId"`
	NotificationID string `json:"notificationId"`
	TenantID       string `json:"tenantId"`
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Icon    string         `json:"icon,omitempty"`
	Image   string         `json:"image,omitempty"`
	Actions []model.Action `json:"actions"`
	Data    PayloadData    `json:"data"`
}

func BuildPayload(c *model.Campaign, notificationID string) Payload {
	actions := make([]model.Action, 0, MaxActions)
	for _, a := range c.Actions {
		if len(actions) == MaxActions {
			break
		}
		if a.Action == "" {
			a.Action = Slugify(a.Title)
		}
		actions = append(actions, a)
	}

	return Payload{
		Title:   c.Title,
		Body:    StripHTML(c.Body),
		Icon:    c.Icon,
		Image:   c.Image,
		Actions: actions,
		Data: PayloadData{
			CampaignID:     c.ID,
			NotificationID: notificationID,
			TenantID:       c.TenantID,
		},
	}
}

func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// StripHTML reduces markup to plain text. Style and script contents are
// dropped and runs of whitespace collapse to a single space.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	var (
		b    strings.Builder
		skip int
		z    = html.NewTokenizer(strings.NewReader(s))
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawText(tag []byte) bool {
	t := string(tag)
	return t == "style" || t == "script"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns an action title into a URL-safe identifier:
// "Ver Promoção!" becomes "ver-promocao".
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(title))
	if err != nil {
		folded = strings.ToLower(title)
	}
	return strings.Trim(nonSlug.ReplaceAllString(folded, "-"), "-")
}
