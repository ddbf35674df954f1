package taskengine

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// PageCursor is the decoded form of a page token: the sort score and
// tiebreak key of the last item returned on the previous page.
type PageCursor struct {
	Score int64  `json:"s"`
	ID    string `json:"i"`
}

// EncodePageToken returns the opaque token for c.
func EncodePageToken(c PageCursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodePageToken parses token. ok is false for an empty or malformed token,
// in which case listing starts from the first page.
func DecodePageToken(token string) (c PageCursor, ok bool) {
	if token == "" {
		return PageCursor{}, false
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return PageCursor{}, false
	}
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return PageCursor{}, false
	}
	return c, true
}

// Follows reports whether an item with the given score and id comes after the
// cursor in descending (score, id) order.
func (c PageCursor) Follows(score int64, id string) bool {
	if score != c.Score {
		return score < c.Score
	}
	return strings.Compare(id, c.ID) < 0
}
