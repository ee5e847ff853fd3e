package twitter

import "time"

// Profile represents a Twitter/X account profile.
type Profile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	Bio            string    `json:"bio,omitempty"`
	Location       string    `json:"location,omitempty"`
	Website        string    `json:"website,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Banner         string    `json:"banner,omitempty"`
	Followers      int       `json:"followers"`
	Following      int       `json:"following"`
	TweetCount     int       `json:"tweetCount"`
	ListedCount    int       `json:"listedCount"`
	Likes          int       `json:"likes"`
	MediaCount     int       `json:"mediaCount"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	Verified       bool      `json:"verified"`
	Private        bool      `json:"private"`
	PinnedTweetIDs []string  `json:"pinnedTweetIds,omitempty"`
}

// Key implements Keyed.
func (p *Profile) Key() string { return p.ID }

// Photo is an image attached to a tweet.
type Photo struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// Video is a video or animated GIF attached to a tweet. URL is the
// highest-bitrate MP4 variant.
type Video struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
	URL     string `json:"url,omitempty"`
}

// Tweet is a normalized post. References to other tweets are by id only;
// quoted and retweeted tweets the response carried are in Page.Related.
type Tweet struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId,omitempty"`
	AuthorID       string    `json:"authorId"`
	Username       string    `json:"username,omitempty"`
	Name           string    `json:"name,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	PermanentURL   string    `json:"permanentUrl,omitempty"`

	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`
	Views    int `json:"views"`

	Hashtags []string `json:"hashtags,omitempty"`
	Cashtags []string `json:"cashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	URLs     []string `json:"urls,omitempty"`
	Photos   []Photo  `json:"photos,omitempty"`
	Videos   []Video  `json:"videos,omitempty"`

	InReplyToID string `json:"inReplyToId,omitempty"`
	QuotedID    string `json:"quotedId,omitempty"`
	RetweetedID string `json:"retweetedId,omitempty"`

	// Thread lists, in server order, every tweet of the module this tweet was
	// delivered in, itself included. ThreadPrev and ThreadNext are its neighbours.
	Thread     []string `json:"thread,omitempty"`
	ThreadPrev string   `json:"threadPrev,omitempty"`
	ThreadNext string   `json:"threadNext,omitempty"`

	IsReply      bool `json:"isReply"`
	IsQuote      bool `json:"isQuote"`
	IsRetweet    bool `json:"isRetweet"`
	IsSelfThread bool `json:"isSelfThread"`
	IsPin        bool `json:"isPin"`
	Sensitive    bool `json:"sensitive"`
}

// Key implements Keyed.
func (t *Tweet) Key() string { return t.ID }

// Conversation is a threaded conversation view anchored at a focal tweet.
// Related holds quoted and retweeted tweets keyed by id.
type Conversation struct {
	Focal   *Tweet
	Tweets  []*Tweet
	Related map[string]*Tweet
}

// MediaKind is the declared kind of an upload.
type MediaKind int

const (
	MediaImage MediaKind = iota
	MediaGIF
	MediaVideo
)

func (k MediaKind) category() string {
	switch k {
	case MediaVideo:
		return "tweet_video"
	case MediaGIF:
		return "tweet_gif"
	}
	return "tweet_image"
}

func (k MediaKind) String() string {
	switch k {
	case MediaVideo:
		return "video"
	case MediaGIF:
		return "gif"
	}
	return "image"
}
