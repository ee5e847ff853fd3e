package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	twitter "github.com/anatolykoptev/go-xclient"
)

var (
	limit           int
	withReplies     bool
	includeRetweets bool
	replyTo         string
	quoteOf         string
	mediaFiles      []string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save session cookies",
	Long: `Log in with the credentials from the config file, .env or XCLIENT_* variables.
Inputs the configuration does not supply are asked for on the terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		creds := twitter.Credentials{
			Username:   cfg.Account.Username,
			Password:   cfg.Account.Password,
			Email:      cfg.Account.Email,
			TOTPSecret: cfg.Account.TOTPSecret,
			Prompt:     stdinPrompt,
		}
		if creds.Username == "" {
			if creds.Username, err = stdinPrompt(cmd.Context(), "LoginEnterUserIdentifierSSO"); err != nil {
				return err
			}
		}
		if err := client.Login(cmd.Context(), creds); err != nil {
			return err
		}
		fmt.Printf("logged in as %s (id %s)\n", creds.Username, client.Session().UserID())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove saved cookies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.Logout(cmd.Context()); err != nil {
			return err
		}
		if err := os.Remove(cfg.Cookies); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cookies: %w", err)
		}
		fmt.Println("logged out")
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <username>",
	Short: "Show a user profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		p, err := client.GetProfile(cmd.Context(), strings.TrimPrefix(args[0], "@"))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(p)
		}
		fmt.Printf("%s (@%s) id=%s\n", p.Name, p.Username, p.ID)
		if p.Bio != "" {
			fmt.Println(p.Bio)
		}
		fmt.Printf("followers %d  following %d  tweets %d\n", p.Followers, p.Following, p.TweetCount)
		return nil
	},
}

var tweetsCmd = &cobra.Command{
	Use:   "tweets <username>",
	Short: "List a user's recent tweets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		username := strings.TrimPrefix(args[0], "@")
		pager := client.GetTweets(cmd.Context(), username, limit)
		if withReplies {
			pager = client.GetTweetsAndReplies(cmd.Context(), username, limit)
		}
		return printTweets(cmd.Context(), pager)
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest <username>",
	Short: "Show a user's newest tweet, skipping the pinned one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		t, err := client.GetLatestTweet(cmd.Context(), strings.TrimPrefix(args[0], "@"), includeRetweets)
		if err != nil {
			return err
		}
		return printTweet(t)
	},
}

var tweetCmd = &cobra.Command{
	Use:   "tweet <id>",
	Short: "Show a single tweet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		t, err := client.GetTweet(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printTweet(t)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search latest tweets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return printTweets(cmd.Context(), client.SearchTweets(cmd.Context(), strings.Join(args, " "), limit))
	},
}

var postCmd = &cobra.Command{
	Use:   "post <text>",
	Short: "Post a tweet, reply or quote",
	Example: `  xclient post "hello"
  xclient post --reply-to 1790000000000000000 "agreed"
  xclient post --media cat.jpg --media dog.png "pets"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var ids []string
		for _, f := range mediaFiles {
			id, err := uploadFile(cmd, client, f)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		text := strings.Join(args, " ")

		var t *twitter.Tweet
		if quoteOf != "" {
			t, err = client.Quote(cmd.Context(), quoteOf, text, ids)
		} else {
			t, err = client.Post(cmd.Context(), text, twitter.PostOptions{ReplyTo: replyTo, MediaIDs: ids})
		}
		if err != nil {
			return err
		}
		return printTweet(t)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image, GIF or video and print its media id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		id, err := uploadFile(cmd, client, args[0])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{tweetsCmd, searchCmd} {
		c.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of tweets")
	}
	tweetsCmd.Flags().BoolVar(&withReplies, "replies", false, "include replies")
	latestCmd.Flags().BoolVar(&includeRetweets, "retweets", false, "allow a retweet as the result")
	postCmd.Flags().StringVar(&replyTo, "reply-to", "", "id of the tweet to reply to")
	postCmd.Flags().StringVar(&quoteOf, "quote", "", "id of the tweet to quote")
	postCmd.Flags().StringArrayVar(&mediaFiles, "media", nil, "file to attach (repeatable)")
	postCmd.MarkFlagsMutuallyExclusive("reply-to", "quote")

	rootCmd.AddCommand(loginCmd, logoutCmd, profileCmd, tweetsCmd, latestCmd, tweetCmd, searchCmd, postCmd, uploadCmd)
}

func uploadFile(cmd *cobra.Command, client *twitter.Client, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return client.UploadMedia(cmd.Context(), data, mediaKind(path))
}

func mediaKind(path string) twitter.MediaKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".m4v", ".webm":
		return twitter.MediaVideo
	case ".gif":
		return twitter.MediaGIF
	}
	return twitter.MediaImage
}

func printTweets(ctx context.Context, p *twitter.Pager[*twitter.Tweet]) error {
	for t, err := range p.All(ctx) {
		if err != nil {
			return err
		}
		if err := printTweet(t); err != nil {
			return err
		}
	}
	return nil
}

func printTweet(t *twitter.Tweet) error {
	if jsonOutput {
		return printJSON(t)
	}
	fmt.Printf("%s  @%s  %s\n", t.ID, t.Username, t.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Println(t.Text)
	fmt.Println()
	return nil
}
