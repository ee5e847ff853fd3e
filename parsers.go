package twitter

import (
	"encoding/json"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const twitterTimeLayout = "Mon Jan 02 15:04:05 +0000 2006"

// maxNestingDepth bounds quote/retweet recursion inside one tweet result.
const maxNestingDepth = 8

// Root paths of the timelines the client reads.
const (
	pathUserTimelineV2 = "data.user.result.timeline_v2.timeline.instructions"
	pathUserTimeline   = "data.user.result.timeline.timeline.instructions"
	pathSearchTimeline = "data.search_by_raw_query.search_timeline.timeline.instructions"
	pathConversation   = "data.threaded_conversation_with_injections_v2.instructions"
)

// --- Raw shapes ---

type userResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Core     struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
		CreatedAt  string `json:"created_at"`
	} `json:"core"`
	Avatar struct {
		ImageURL string `json:"image_url"`
	} `json:"avatar"`
	Legacy struct {
		Name             string   `json:"name"`
		ScreenName       string   `json:"screen_name"`
		FollowersCount   int      `json:"followers_count"`
		FriendsCount     int      `json:"friends_count"`
		StatusesCount    int      `json:"statuses_count"`
		ListedCount      int      `json:"listed_count"`
		FavouritesCount  int      `json:"favourites_count"`
		MediaCount       int      `json:"media_count"`
		CreatedAt        string   `json:"created_at"`
		Verified         bool     `json:"verified"`
		Protected        bool     `json:"protected"`
		Description      string   `json:"description"`
		Location         string   `json:"location"`
		ProfileImageURL  string   `json:"profile_image_url_https"`
		ProfileBannerURL string   `json:"profile_banner_url"`
		PinnedTweetIDs   []string `json:"pinned_tweet_ids_str"`
		Entities         struct {
			URL struct {
				URLs []struct {
					ExpandedURL string `json:"expanded_url"`
				} `json:"urls"`
			} `json:"url"`
		} `json:"entities"`
	} `json:"legacy"`
	IsBlueVerified bool `json:"is_blue_verified"`
}

type rawMedia struct {
	IDStr         string `json:"id_str"`
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	ExtAltText    string `json:"ext_alt_text"`
	VideoInfo     struct {
		Variants []struct {
			Bitrate     int    `json:"bitrate"`
			ContentType string `json:"content_type"`
			URL         string `json:"url"`
		} `json:"variants"`
	} `json:"video_info"`
}

type tweetResult struct {
	RestID string `json:"rest_id"`
	Core   struct {
		UserResults struct {
			Result userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
	Legacy struct {
		IDStr                string `json:"id_str"`
		FullText             string `json:"full_text"`
		CreatedAt            string `json:"created_at"`
		ConversationIDStr    string `json:"conversation_id_str"`
		FavoriteCount        int    `json:"favorite_count"`
		RetweetCount         int    `json:"retweet_count"`
		ReplyCount           int    `json:"reply_count"`
		QuoteCount           int    `json:"quote_count"`
		UserIDStr            string `json:"user_id_str"`
		InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`
		QuotedStatusIDStr    string `json:"quoted_status_id_str"`
		IsQuoteStatus        bool   `json:"is_quote_status"`
		PossiblySensitive    bool   `json:"possibly_sensitive"`
		Entities             struct {
			Hashtags []struct {
				Text string `json:"text"`
			} `json:"hashtags"`
			Symbols []struct {
				Text string `json:"text"`
			} `json:"symbols"`
			UserMentions []struct {
				ScreenName string `json:"screen_name"`
			} `json:"user_mentions"`
			URLs []struct {
				ExpandedURL string `json:"expanded_url"`
			} `json:"urls"`
		} `json:"entities"`
		ExtendedEntities *struct {
			Media []rawMedia `json:"media"`
		} `json:"extended_entities"`
	} `json:"legacy"`
	Views struct {
		Count string `json:"count"`
	} `json:"views"`
}

// --- Timelines ---

// normalizer flattens one response into tweets. Items are unique by id
// within one response; the first occurrence wins. tweets holds the timeline
// entries in server order, related the tweets reached only through a quote
// or retweet.
type normalizer struct {
	op       string
	tweets   []*Tweet
	related  map[string]*Tweet
	byID     map[string]*Tweet
	visiting map[string]bool
	next     string
}

func newNormalizer(op string) *normalizer {
	return &normalizer{
		op:       op,
		related:  make(map[string]*Tweet),
		byID:     make(map[string]*Tweet),
		visiting: make(map[string]bool),
	}
}

// findInstructions returns the first instruction array found at paths.
func findInstructions(op string, body []byte, paths ...string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{Op: op, Detail: "invalid JSON"}
	}
	root := gjson.ParseBytes(body)
	for _, p := range paths {
		if r := root.Get(p); r.IsArray() {
			return r.Array(), nil
		}
	}
	return nil, &MalformedResponseError{Op: op, Detail: "no timeline instructions"}
}

// normalizeTimeline converts a timeline response into tweets and the bottom cursor.
func normalizeTimeline(op string, body []byte, paths ...string) (Page[*Tweet], error) {
	instructions, err := findInstructions(op, body, paths...)
	if err != nil {
		return Page[*Tweet]{}, err
	}
	n := newNormalizer(op)
	n.instructions(instructions)
	return Page[*Tweet]{Items: n.tweets, Related: n.related, Next: n.next}, nil
}

// normalizeConversation flattens a threaded conversation and selects focalID.
func normalizeConversation(body []byte, focalID string) (*Conversation, error) {
	instructions, err := findInstructions("TweetDetail", body, pathConversation)
	if err != nil {
		return nil, err
	}
	n := newNormalizer("TweetDetail")
	n.instructions(instructions)
	focal, ok := n.byID[focalID]
	if !ok {
		return nil, &NotFoundError{Kind: "tweet", ID: focalID}
	}
	return &Conversation{Focal: focal, Tweets: n.tweets, Related: n.related}, nil
}

func (n *normalizer) instructions(instructions []gjson.Result) {
	for _, ins := range instructions {
		switch ins.Get("type").String() {
		case "TimelineAddEntries":
			for _, entry := range ins.Get("entries").Array() {
				n.entry(entry, false)
			}
		case "TimelinePinEntry":
			n.entry(ins.Get("entry"), true)
		case "TimelineReplaceEntry":
			n.entry(ins.Get("entry"), false)
		case "TimelineAddToModule":
			n.module(ins.Get("moduleItems"))
		default:
			// TimelineClearCache, TimelineTerminateTimeline, TimelineShowAlert...
		}
	}
}

func (n *normalizer) entry(entry gjson.Result, pinned bool) {
	content := entry.Get("content")
	kind := content.Get("entryType").String()
	if kind == "" {
		kind = content.Get("__typename").String()
	}
	switch kind {
	case "TimelineTimelineCursor":
		n.cursor(entry.Get("entryId").String(), content)
	case "TimelineTimelineItem":
		item := content.Get("itemContent")
		if item.Get("__typename").String() == "TimelineTimelineCursor" {
			n.cursor(entry.Get("entryId").String(), item)
			return
		}
		if t := n.itemContent(item); t != nil && pinned {
			t.IsPin = true
		}
	case "TimelineTimelineModule":
		n.module(content.Get("items"))
	default:
		slog.Debug("skip timeline entry", slog.String("op", n.op), slog.String("entry", entry.Get("entryId").String()), slog.String("type", kind))
	}
}

func (n *normalizer) cursor(entryID string, content gjson.Result) {
	typ := content.Get("cursorType").String()
	if typ == "Bottom" || strings.HasPrefix(entryID, "cursor-bottom") {
		n.next = content.Get("value").String()
	}
}

// module expands a module entry. Tweets delivered together are linked as
// thread siblings in server order.
func (n *normalizer) module(items gjson.Result) {
	var thread []*Tweet
	inThread := make(map[string]bool)
	for _, it := range items.Array() {
		item := it.Get("item.itemContent")
		if item.Get("__typename").String() == "TimelineTimelineCursor" {
			n.cursor(it.Get("entryId").String(), item)
			continue
		}
		if t := n.itemContent(item); t != nil && !inThread[t.ID] {
			inThread[t.ID] = true
			thread = append(thread, t)
		}
	}
	linkThread(thread)
}

func linkThread(thread []*Tweet) {
	if len(thread) < 2 {
		return
	}
	ids := make([]string, len(thread))
	sameAuthor := true
	for i, t := range thread {
		ids[i] = t.ID
		if t.AuthorID != thread[0].AuthorID {
			sameAuthor = false
		}
	}
	for i, t := range thread {
		t.Thread = ids
		if i > 0 {
			t.ThreadPrev = ids[i-1]
		}
		if i < len(ids)-1 {
			t.ThreadNext = ids[i+1]
		}
		t.IsSelfThread = sameAuthor
	}
}

// itemContent normalizes a TimelineTweet item and returns the outer tweet.
func (n *normalizer) itemContent(item gjson.Result) *Tweet {
	if item.Get("__typename").String() != "TimelineTweet" {
		return nil
	}
	id, ok := n.tweet(item.Get("tweet_results.result"), 0)
	if !ok {
		slog.Debug("skip malformed tweet", slog.String("op", n.op))
		return nil
	}
	return n.byID[id]
}

// unwrapTweet resolves visibility wrappers. It returns false for tombstones
// and anything without a tweet shape.
func unwrapTweet(r gjson.Result) (gjson.Result, bool) {
	switch r.Get("__typename").String() {
	case "TweetWithVisibilityResults":
		r = r.Get("tweet")
	case "TweetTombstone", "TweetUnavailable":
		return r, false
	}
	return r, r.IsObject() && r.Get("legacy").Exists()
}

// tweet normalizes one tweet result and its quoted and retweeted results,
// returning its id. Depth 0 is a timeline entry; deeper results go to related
// unless they also appear as an entry.
func (n *normalizer) tweet(r gjson.Result, depth int) (string, bool) {
	if depth > maxNestingDepth {
		return "", false
	}
	r, ok := unwrapTweet(r)
	if !ok {
		return "", false
	}
	id := r.Get("rest_id").String()
	if id == "" {
		id = r.Get("legacy.id_str").String()
	}
	if id == "" {
		return "", false
	}
	if n.visiting[id] {
		return id, true
	}
	if t := n.byID[id]; t != nil {
		if _, nested := n.related[id]; nested && depth == 0 {
			delete(n.related, id)
			n.tweets = append(n.tweets, t)
		}
		return id, true
	}

	var raw tweetResult
	if err := json.Unmarshal([]byte(r.Raw), &raw); err != nil {
		slog.Debug("skip tweet parse error", slog.String("id", id), slog.Any("error", err))
		return "", false
	}
	t := buildTweet(id, &raw)
	n.visiting[id] = true
	defer delete(n.visiting, id)
	n.byID[id] = t
	if depth == 0 {
		n.tweets = append(n.tweets, t)
	} else {
		n.related[id] = t
	}

	if q := r.Get("quoted_status_result.result"); q.Exists() {
		if qid, ok := n.tweet(q, depth+1); ok {
			t.QuotedID = qid
			t.IsQuote = true
		}
	}
	if rt := r.Get("legacy.retweeted_status_result.result"); rt.Exists() {
		if rid, ok := n.tweet(rt, depth+1); ok {
			t.RetweetedID = rid
			t.IsRetweet = true
		}
	}
	return id, true
}

func buildTweet(id string, r *tweetResult) *Tweet {
	user := r.Core.UserResults.Result
	username := firstNonEmpty(user.Core.ScreenName, user.Legacy.ScreenName)

	text := r.Legacy.FullText
	if note := r.NoteTweet.NoteTweetResults.Result.Text; note != "" {
		text = note
	}

	t := &Tweet{
		ID:             id,
		ConversationID: r.Legacy.ConversationIDStr,
		AuthorID:       firstNonEmpty(r.Legacy.UserIDStr, user.RestID),
		Username:       username,
		Name:           firstNonEmpty(user.Core.Name, user.Legacy.Name),
		Text:           html.UnescapeString(text),
		CreatedAt:      parseTwitterTime(r.Legacy.CreatedAt),
		Likes:          r.Legacy.FavoriteCount,
		Retweets:       r.Legacy.RetweetCount,
		Replies:        r.Legacy.ReplyCount,
		Quotes:         r.Legacy.QuoteCount,
		InReplyToID:    r.Legacy.InReplyToStatusIDStr,
		QuotedID:       r.Legacy.QuotedStatusIDStr,
		IsQuote:        r.Legacy.IsQuoteStatus,
		Sensitive:      r.Legacy.PossiblySensitive,
	}
	t.IsReply = t.InReplyToID != ""
	if username != "" {
		t.PermanentURL = "https://x.com/" + username + "/status/" + id
	}
	if r.Views.Count != "" {
		t.Views, _ = strconv.Atoi(r.Views.Count)
	}
	for _, h := range r.Legacy.Entities.Hashtags {
		t.Hashtags = append(t.Hashtags, h.Text)
	}
	for _, s := range r.Legacy.Entities.Symbols {
		t.Cashtags = append(t.Cashtags, s.Text)
	}
	for _, m := range r.Legacy.Entities.UserMentions {
		t.Mentions = append(t.Mentions, m.ScreenName)
	}
	for _, u := range r.Legacy.Entities.URLs {
		if u.ExpandedURL != "" {
			t.URLs = append(t.URLs, u.ExpandedURL)
		}
	}
	if r.Legacy.ExtendedEntities != nil {
		t.Photos, t.Videos = parseMedia(r.Legacy.ExtendedEntities.Media)
	}
	return t
}

func parseMedia(media []rawMedia) ([]Photo, []Video) {
	var photos []Photo
	var videos []Video
	for _, m := range media {
		switch m.Type {
		case "photo":
			photos = append(photos, Photo{ID: m.IDStr, URL: m.MediaURLHTTPS, AltText: m.ExtAltText})
		case "video", "animated_gif":
			v := Video{ID: m.IDStr, Preview: m.MediaURLHTTPS}
			best := -1
			for _, variant := range m.VideoInfo.Variants {
				if variant.ContentType == "video/mp4" && variant.Bitrate > best {
					best = variant.Bitrate
					v.URL = variant.URL
				}
			}
			videos = append(videos, v)
		}
	}
	return photos, videos
}

// --- Profiles ---

// parseProfile parses the UserByScreenName GraphQL response.
func parseProfile(body []byte, username string) (*Profile, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{Op: "UserByScreenName", Detail: "invalid JSON"}
	}
	result := gjson.GetBytes(body, "data.user.result")
	if !result.Exists() {
		if gjson.GetBytes(body, "data.user").Exists() || gjson.GetBytes(body, "data").IsObject() {
			return nil, &NotFoundError{Kind: "user", ID: username}
		}
		return nil, &MalformedResponseError{Op: "UserByScreenName", Detail: "no data.user"}
	}
	var r userResult
	if err := json.Unmarshal([]byte(result.Raw), &r); err != nil {
		return nil, &MalformedResponseError{Op: "UserByScreenName", Detail: err.Error()}
	}
	p := buildProfile(&r)
	if p == nil {
		return nil, &NotFoundError{Kind: "user", ID: username}
	}
	return p, nil
}

// normalizeUsers converts a follower/following timeline into profiles.
func normalizeUsers(op string, body []byte, paths ...string) (Page[*Profile], error) {
	instructions, err := findInstructions(op, body, paths...)
	if err != nil {
		return Page[*Profile]{}, err
	}
	var page Page[*Profile]
	for _, ins := range instructions {
		entries := ins.Get("entries").Array()
		if e := ins.Get("entry"); e.Exists() {
			entries = append(entries, e)
		}
		for _, entry := range entries {
			content := entry.Get("content")
			if content.Get("cursorType").String() == "Bottom" || strings.HasPrefix(entry.Get("entryId").String(), "cursor-bottom") {
				page.Next = content.Get("value").String()
				continue
			}
			item := content.Get("itemContent")
			if item.Get("__typename").String() != "TimelineUser" {
				continue
			}
			var r userResult
			if err := json.Unmarshal([]byte(item.Get("user_results.result").Raw), &r); err != nil {
				slog.Debug("skip user parse error", slog.Any("error", err))
				continue
			}
			if p := buildProfile(&r); p != nil {
				page.Items = append(page.Items, p)
			}
		}
	}
	return page, nil
}

// buildProfile returns nil for unavailable or id-less users.
func buildProfile(r *userResult) *Profile {
	if r.TypeName == "UserUnavailable" || r.RestID == "" {
		return nil
	}
	p := &Profile{
		ID:             r.RestID,
		Username:       firstNonEmpty(r.Core.ScreenName, r.Legacy.ScreenName),
		Name:           firstNonEmpty(r.Core.Name, r.Legacy.Name),
		Bio:            strings.TrimSpace(r.Legacy.Description),
		Location:       r.Legacy.Location,
		Avatar:         firstNonEmpty(r.Avatar.ImageURL, r.Legacy.ProfileImageURL),
		Banner:         r.Legacy.ProfileBannerURL,
		Followers:      r.Legacy.FollowersCount,
		Following:      r.Legacy.FriendsCount,
		TweetCount:     r.Legacy.StatusesCount,
		ListedCount:    r.Legacy.ListedCount,
		Likes:          r.Legacy.FavouritesCount,
		MediaCount:     r.Legacy.MediaCount,
		CreatedAt:      parseTwitterTime(firstNonEmpty(r.Core.CreatedAt, r.Legacy.CreatedAt)),
		Verified:       r.Legacy.Verified || r.IsBlueVerified,
		Private:        r.Legacy.Protected,
		PinnedTweetIDs: r.Legacy.PinnedTweetIDs,
	}
	if urls := r.Legacy.Entities.URL.URLs; len(urls) > 0 {
		p.Website = urls[0].ExpandedURL
	}
	return p
}

// --- Mutations ---

// parseCreateTweet extracts the tweet from a CreateTweet mutation response.
func parseCreateTweet(body []byte) (*Tweet, error) {
	result := gjson.GetBytes(body, "data.create_tweet.tweet_results.result")
	if !result.Exists() {
		return nil, &MalformedResponseError{Op: "CreateTweet", Detail: "no tweet_results: " + truncateBytes(body, 300)}
	}
	n := newNormalizer("CreateTweet")
	id, ok := n.tweet(result, 0)
	if !ok {
		id = result.Get("rest_id").String()
		if id == "" {
			return nil, &MalformedResponseError{Op: "CreateTweet", Detail: "empty tweet id"}
		}
		return &Tweet{ID: id}, nil
	}
	return n.byID[id], nil
}

func parseTwitterTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(twitterTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
