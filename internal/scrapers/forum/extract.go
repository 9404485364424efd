package forum

import (
	"bytes"
	"net/url"
	"strings"

	"forumbump/pkg/htmlutil"
	"forumbump/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
)

// the extractors below are tied to the exact markup of the forum, a missing
// element is reported as an ExtractionError.

func parseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// ExtractHiddenField returns the value of the form input with the given name.
func ExtractHiddenField(doc *goquery.Document, name string) (string, error) {
	input := doc.Find("input").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("name", "") == name
	}).First()
	if input.Length() == 0 {
		return "", missingField(name)
	}
	return input.AttrOr("value", ""), nil
}

func requireText(sel *goquery.Selection, field string) (string, error) {
	if sel.Length() == 0 {
		return "", missingField(field)
	}
	return htmlutil.Text(sel), nil
}

// ExtractProfile reads the profile page of the logged in user.
func ExtractProfile(doc *goquery.Document) (Profile, error) {
	var profile Profile
	var err error

	title, err := requireText(doc.Find("title").First(), "title")
	if err != nil {
		return Profile{}, err
	}
	profile.Name = strings.TrimSpace(strings.Split(title, " |")[0])

	profile.Uid, err = requireText(doc.Find("a#profileLink").First(), "profileLink")
	if err != nil {
		return Profile{}, err
	}

	avatar := doc.Find("div.profile_avatar img").First()
	if avatar.Length() == 0 {
		return Profile{}, missingField("profile_avatar")
	}
	profile.AvatarUrl = avatar.AttrOr("src", "")

	// the first credits link is in the header, the second is on the profile
	profile.Credits, err = requireText(doc.Find(`a[href$="credits.php"]`).Eq(1), "credits")
	if err != nil {
		return Profile{}, err
	}
	profile.Reputation, err = requireText(doc.Find("strong.reputation_positive").First(), "reputation_positive")
	if err != nil {
		return Profile{}, err
	}
	profile.Vouches, err = requireText(doc.Find("strong.reputation_neutral").First(), "reputation_neutral")
	if err != nil {
		return Profile{}, err
	}

	return profile, nil
}

// splitAlertInfo splits the text of an alert into its description and the
// time it happened, which is the last line.
func splitAlertInfo(fragments []string) (string, string) {
	switch len(fragments) {
	case 0:
		return "", ""
	case 1:
		return fragments[0], ""
	}
	last := len(fragments) - 1
	return strings.Join(fragments[:last], " "), fragments[last]
}

// ExtractAlerts reads the alert listing on alerts.php.
func ExtractAlerts(doc *goquery.Document) ([]Alert, error) {
	table := doc.Find("tbody#latestAlertsListing").First()
	if table.Length() == 0 {
		return nil, missingField("latestAlertsListing")
	}

	alerts := []Alert{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		rowId, ok := row.Attr("id")
		if !ok {
			return
		}

		info, at := splitAlertInfo(htmlutil.TextFragments(cells.Eq(1).Find("a").First()))
		alerts = append(alerts, Alert{
			Id:   afterLast(rowId, "row_"),
			User: cells.Eq(0).Find("a").First().AttrOr("href", ""),
			Info: info,
			Time: at,
		})
	})
	return alerts, nil
}

// ExtractMessages reads the private message inbox on private.php. The first
// two rows of the table are headers and the last one is the pagination.
func ExtractMessages(doc *goquery.Document) ([]Message, error) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, missingField("table")
	}

	rows := table.Find("tr")
	messages := []Message{}
	if rows.Length() <= 3 {
		return messages, nil
	}

	var err error
	rows.Slice(2, rows.Length()-1).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		body := row.Find("td.trow1_pm").Eq(1).Find("a").First()
		if body.Length() == 0 {
			err = missingField("trow1_pm")
			return false
		}

		messages = append(messages, Message{
			Id:     afterLast(body.AttrOr("href", ""), "pmid="),
			User:   htmlutil.Text(row.Find("td.trow2_pm").Eq(1)),
			Title:  htmlutil.Text(body),
			Time:   htmlutil.Text(row.Find("td.time_sent span").First()),
			Unread: body.HasClass("new_pm"),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ExtractReplyThreadID finds the numeric thread id behind the reply button
// of a thread page. `ref` is only used in the error.
func ExtractReplyThreadID(doc *goquery.Document, ref string) (string, error) {
	button := doc.Find("div.newrepliesbutton").First()
	if button.Length() == 0 {
		return "", &InvalidThreadError{Thread: ref}
	}

	href := button.Find("a").First().AttrOr("href", "")
	tid := ""
	if parsed, err := url.Parse(href); err == nil {
		tid = parsed.Query().Get("tid")
	}
	if tid == "" {
		tid = afterLast(href, "tid=")
	}
	if !textutil.IsDigits(tid) {
		return "", &InvalidThreadError{Thread: ref}
	}
	return tid, nil
}

// ExtractLogoutKey finds the logout key embedded in the logout link of any page.
func ExtractLogoutKey(body string) (string, error) {
	idx := strings.LastIndex(body, "logoutkey=")
	if idx < 0 {
		return "", missingField("logoutkey")
	}
	key := body[idx+len("logoutkey="):]
	if end := strings.IndexAny(key, "\"&"); end >= 0 {
		key = key[:end]
	}
	if key == "" {
		return "", missingField("logoutkey")
	}
	return key, nil
}

// ExtractRecaptchaSiteKey returns the reCAPTCHA site key of a form, "" when
// the page has no CAPTCHA.
func ExtractRecaptchaSiteKey(doc *goquery.Document) string {
	return doc.Find(".g-recaptcha[data-sitekey]").First().AttrOr("data-sitekey", "")
}

func afterLast(s, sep string) string {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s
	}
	return s[idx+len(sep):]
}
