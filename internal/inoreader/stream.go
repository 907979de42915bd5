package inoreader

import (
	"net/url"
	"regexp"
	"strings"
)

// ReadingListID is the stream id of "all articles".
const ReadingListID = "user/-/state/com.google/reading-list"

var (
	apiStreamPattern = regexp.MustCompile(`/reader/api/0/stream/contents/(.*)`)
	streamPattern    = regexp.MustCompile(`^/stream/(.*)`)
	labelPattern     = regexp.MustCompile(`^/(?:folder|tag)/(.*)`)
	feedPattern      = regexp.MustCompile(`^/feed/(.*)`)
)

// ResolveStreamID maps a user-facing Inoreader URL to its stream id.
//
// Accepted shapes, tried in order:
//
//	.../reader/api/0/stream/contents/<id>  -> <id>
//	/stream/<id>                           -> <id>
//	.../all_articles                       -> user/-/state/com.google/reading-list
//	/folder/<name>, /tag/<name>            -> user/-/label/<name>
//	/feed/<url>                            -> feed/<url>
//
// Captures are percent-decoded. An empty capture does not match.
func ResolveStreamID(feedURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURLFormat
	}
	path := u.EscapedPath()

	if id, ok := capture(apiStreamPattern, path); ok {
		return id, nil
	}
	if id, ok := capture(streamPattern, path); ok {
		return id, nil
	}
	if strings.HasSuffix(path, "/all_articles") {
		return ReadingListID, nil
	}
	if name, ok := capture(labelPattern, path); ok {
		return "user/-/label/" + name, nil
	}
	if target, ok := capture(feedPattern, path); ok {
		return "feed/" + target, nil
	}

	return "", ErrInvalidURLFormat
}

func capture(re *regexp.Regexp, path string) (string, bool) {
	m := re.FindStringSubmatch(path)
	if m == nil || m[1] == "" {
		return "", false
	}
	decoded, err := url.PathUnescape(m[1])
	if err != nil {
		return "", false
	}
	return decoded, true
}
