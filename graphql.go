package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// GetProfile fetches a user profile by handle.
func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	variables := map[string]any{
		"screen_name":              username,
		"withSafetyModeUserFields": true,
	}
	url, err := EndpointURL("UserByScreenName")
	if err != nil {
		return nil, err
	}
	url = addGraphQLParams(url, variables, Endpoints["UserByScreenName"].Features, map[string]any{"withAuxiliaryUserLabels": false})

	body, err := c.doGET(ctx, "UserByScreenName", url)
	if err != nil {
		return nil, fmt.Errorf("UserByScreenName: %w", err)
	}
	return parseProfile(body, username)
}

// GetUserID resolves a handle to its numeric user id.
func (c *Client) GetUserID(ctx context.Context, username string) (string, error) {
	p, err := c.GetProfile(ctx, username)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// GetTweets returns a lazy sequence of at most limit tweets from a user's
// timeline. The handle is resolved on the first fetch.
func (c *Client) GetTweets(_ context.Context, username string, limit int) *Pager[*Tweet] {
	return c.userTimeline("UserTweets", username, limit)
}

// GetTweetsAndReplies is GetTweets including the user's replies.
func (c *Client) GetTweetsAndReplies(_ context.Context, username string, limit int) *Pager[*Tweet] {
	return c.userTimeline("UserTweetsAndReplies", username, limit)
}

func (c *Client) userTimeline(operation, username string, limit int) *Pager[*Tweet] {
	if username == "" {
		return failedPager[*Tweet](fmt.Errorf("%s: empty username", operation))
	}
	var userID string
	fetch := func(ctx context.Context, count int, cursor string) (Page[*Tweet], error) {
		if userID == "" {
			id, err := c.GetUserID(ctx, username)
			if err != nil {
				return Page[*Tweet]{}, err
			}
			userID = id
		}
		variables := map[string]any{
			"userId":                                 userID,
			"count":                                  count,
			"includePromotedContent":                 false,
			"withQuickPromoteEligibilityTweetFields": true,
			"withVoice":                              true,
			"withV2Timeline":                         true,
		}
		if operation == "UserTweetsAndReplies" {
			variables["withCommunity"] = true
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}
		body, err := c.graphQLGet(ctx, operation, variables, nil)
		if err != nil {
			return Page[*Tweet]{}, err
		}
		return normalizeTimeline(operation, body, pathUserTimelineV2, pathUserTimeline)
	}
	return Paginate(fetch, limit, c.cfg.PageSize)
}

// SearchTweets returns a lazy sequence of at most limit tweets matching query,
// newest first.
func (c *Client) SearchTweets(_ context.Context, query string, limit int) *Pager[*Tweet] {
	fetch := func(ctx context.Context, count int, cursor string) (Page[*Tweet], error) {
		variables := map[string]any{
			"rawQuery":    query,
			"count":       count,
			"querySource": "typed_query",
			"product":     "Latest",
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}
		body, err := c.graphQLGet(ctx, "SearchTimeline", variables, map[string]any{"withArticleRichContentState": false})
		if err != nil {
			return Page[*Tweet]{}, err
		}
		return normalizeTimeline("SearchTimeline", body, pathSearchTimeline)
	}
	return Paginate(fetch, limit, c.cfg.PageSize)
}

// GetFollowers returns a lazy sequence of at most limit followers of userID.
func (c *Client) GetFollowers(_ context.Context, userID string, limit int) *Pager[*Profile] {
	return c.userList("Followers", userID, limit)
}

// GetFollowing returns a lazy sequence of at most limit accounts userID follows.
func (c *Client) GetFollowing(_ context.Context, userID string, limit int) *Pager[*Profile] {
	return c.userList("Following", userID, limit)
}

func (c *Client) userList(operation, userID string, limit int) *Pager[*Profile] {
	fetch := func(ctx context.Context, count int, cursor string) (Page[*Profile], error) {
		if err := c.requireAuth(operation); err != nil {
			return Page[*Profile]{}, err
		}
		variables := map[string]any{
			"userId":                 userID,
			"count":                  count,
			"includePromotedContent": false,
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}
		body, err := c.graphQLGet(ctx, operation, variables, nil)
		if err != nil {
			return Page[*Profile]{}, err
		}
		return normalizeUsers(operation, body, pathUserTimeline, pathUserTimelineV2)
	}
	return Paginate(fetch, limit, c.cfg.PageSize)
}

// GetTweet fetches a single tweet through its conversation view.
func (c *Client) GetTweet(ctx context.Context, id string) (*Tweet, error) {
	conv, err := c.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv.Focal, nil
}

// GetConversation fetches the threaded conversation around tweet id.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	variables := map[string]any{
		"focalTweetId":                           id,
		"with_rux_injections":                    false,
		"includePromotedContent":                 false,
		"withCommunity":                          true,
		"withQuickPromoteEligibilityTweetFields": true,
		"withBirdwatchNotes":                     true,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}
	body, err := c.graphQLGet(ctx, "TweetDetail", variables, map[string]any{"withArticleRichContentState": false})
	if err != nil {
		return nil, err
	}
	return normalizeConversation(body, id)
}

// GetLatestTweet returns the newest tweet posted by username. Pinned tweets
// are skipped, and so are retweets unless includeRetweets is set.
func (c *Client) GetLatestTweet(ctx context.Context, username string, includeRetweets bool) (*Tweet, error) {
	p := c.GetTweets(ctx, username, c.cfg.PageSize)
	t, err := p.First(ctx, ByPredicate(func(t *Tweet) bool {
		return !t.IsPin && (includeRetweets || !t.IsRetweet) && strings.EqualFold(t.Username, username)
	}))
	if errors.Is(err, ErrNoMatch) {
		return nil, &NotFoundError{Kind: "latest tweet of", ID: username}
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("latest tweet", slog.String("user", username), slog.String("id", t.ID))
	return t, nil
}

// graphQLGet builds a GraphQL query URL for operation and sends it.
func (c *Client) graphQLGet(ctx context.Context, operation string, variables, fieldToggles map[string]any) ([]byte, error) {
	url, err := EndpointURL(operation)
	if err != nil {
		return nil, err
	}
	url = addGraphQLParams(url, variables, Endpoints[operation].Features, fieldToggles)
	body, err := c.doGET(ctx, operation, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return body, nil
}
