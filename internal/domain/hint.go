package domain

import "regexp"

// Open strategies advised to the front-end. Advisory only; the server never
// enforces how a deep link is opened.
const (
	OpenLiffExternal = "liff_external"
	OpenNewTab       = "new_tab"
)

var (
	lineUARe = regexp.MustCompile(`(?i)Line/|LIFF|linemyapp`)
	iosUARe  = regexp.MustCompile(`(?i)iPhone|iPad|iPod|CriOS|FxiOS`)
)

// OpenHint tells the front-end how it should open the ThaiID deep link given
// where the page is running (inside the LINE in-app browser or not).
type OpenHint struct {
	InLine       bool    `json:"in_line"`
	IsIOS        bool    `json:"is_ios"`
	OpenStrategy string  `json:"open_strategy"`
	LiffID       *string `json:"liff_id"`
}

func IsLineUA(ua string) bool {
	return lineUARe.MatchString(ua)
}

func IsIOSUA(ua string) bool {
	return iosUARe.MatchString(ua)
}

// BuildOpenHint derives the hint from a user-agent string. liff_external is
// only advised when the client is inside LINE and a LIFF id is configured;
// everywhere else a new tab keeps the verify page from being replaced.
func BuildOpenHint(ua, liffID string) OpenHint {
	h := OpenHint{
		InLine:       IsLineUA(ua),
		IsIOS:        IsIOSUA(ua),
		OpenStrategy: OpenNewTab,
	}
	if liffID != "" {
		h.LiffID = &liffID
		if h.InLine {
			h.OpenStrategy = OpenLiffExternal
		}
	}
	return h
}
