package twitter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tidwall/gjson"
)

// PostOptions are optional parts of a new tweet.
type PostOptions struct {
	ReplyTo  string
	MediaIDs []string
}

// Post publishes a tweet and returns it as the server echoed it.
func (c *Client) Post(ctx context.Context, text string, opts PostOptions) (*Tweet, error) {
	variables := map[string]any{
		"tweet_text":              text,
		"dark_request":            false,
		"media":                   mediaVariables(opts.MediaIDs),
		"semantic_annotation_ids": []any{},
	}
	if opts.ReplyTo != "" {
		variables["reply"] = map[string]any{
			"in_reply_to_tweet_id":   opts.ReplyTo,
			"exclude_reply_user_ids": []any{},
		}
	}
	return c.createTweet(ctx, variables)
}

// Quote publishes a tweet quoting tweetID.
func (c *Client) Quote(ctx context.Context, tweetID, text string, mediaIDs []string) (*Tweet, error) {
	variables := map[string]any{
		"tweet_text":              text,
		"dark_request":            false,
		"attachment_url":          "https://x.com/i/status/" + tweetID,
		"media":                   mediaVariables(mediaIDs),
		"semantic_annotation_ids": []any{},
	}
	return c.createTweet(ctx, variables)
}

func mediaVariables(ids []string) map[string]any {
	entities := make([]any, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, map[string]any{"media_id": id, "tagged_users": []any{}})
	}
	return map[string]any{"media_entities": entities, "possibly_sensitive": false}
}

func (c *Client) createTweet(ctx context.Context, variables map[string]any) (*Tweet, error) {
	body, err := c.graphQLPost(ctx, "CreateTweet", variables)
	if err != nil {
		return nil, err
	}
	t, err := parseCreateTweet(body)
	if err != nil {
		return nil, err
	}
	slog.Info("tweet posted", slog.String("id", t.ID))
	return t, nil
}

// Like favorites a tweet.
func (c *Client) Like(ctx context.Context, tweetID string) error {
	_, err := c.graphQLPost(ctx, "FavoriteTweet", map[string]any{"tweet_id": tweetID})
	return err
}

// Unlike removes a favorite.
func (c *Client) Unlike(ctx context.Context, tweetID string) error {
	_, err := c.graphQLPost(ctx, "UnfavoriteTweet", map[string]any{"tweet_id": tweetID})
	return err
}

// Retweet reposts a tweet and returns the id of the retweet.
func (c *Client) Retweet(ctx context.Context, tweetID string) (string, error) {
	body, err := c.graphQLPost(ctx, "CreateRetweet", map[string]any{"tweet_id": tweetID, "dark_request": false})
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "data.create_retweet.retweet_results.result.rest_id").String()
	if id == "" {
		return "", &MalformedResponseError{Op: "CreateRetweet", Detail: "no retweet id"}
	}
	return id, nil
}

// Follow follows username.
func (c *Client) Follow(ctx context.Context, username string) error {
	return c.friendship(ctx, "follow", friendshipCreateURL, username)
}

// Unfollow unfollows username.
func (c *Client) Unfollow(ctx context.Context, username string) error {
	return c.friendship(ctx, "unfollow", friendshipDestroyURL, username)
}

func (c *Client) friendship(ctx context.Context, op, endpoint, username string) error {
	if err := c.requireAuth(op); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("screen_name", username)
	form.Set("include_profile_interstitial_type", "1")
	form.Set("skip_status", "true")
	body, err := c.doForm(ctx, op, endpoint, form)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(body, "id_str").Exists() {
		return &MalformedResponseError{Op: op, Detail: "no user in response"}
	}
	slog.Info(op, slog.String("user", username))
	return nil
}

// IsFollowing reports whether the authenticated user follows username.
func (c *Client) IsFollowing(ctx context.Context, username string) (bool, error) {
	if err := c.requireAuth("friendship show"); err != nil {
		return false, err
	}
	q := url.Values{}
	if id := c.session.UserID(); id != "" {
		q.Set("source_id", id)
	}
	q.Set("target_screen_name", username)
	body, err := c.doGET(ctx, "friendship show", friendshipShowURL+"?"+q.Encode())
	if err != nil {
		return false, err
	}
	following := gjson.GetBytes(body, "relationship.source.following")
	if !following.Exists() {
		return false, &MalformedResponseError{Op: "friendship show", Detail: "no relationship"}
	}
	return following.Bool(), nil
}

// graphQLPost sends a GraphQL mutation. Mutations always need an authenticated session.
func (c *Client) graphQLPost(ctx context.Context, operation string, variables map[string]any) ([]byte, error) {
	if err := c.requireAuth(operation); err != nil {
		return nil, err
	}
	endpoint, err := EndpointURL(operation)
	if err != nil {
		return nil, err
	}
	payload, err := graphQLBody(operation, variables)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", operation, err)
	}
	body, err := c.doJSON(ctx, operation, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return body, nil
}
