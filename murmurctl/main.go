package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/murmurchat/murmur/murmur"
)

const MurmurCtlVersion = "0.0.1"

const DefaultApiUrl = "https://api.murmur.chat"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

type CtlConfig struct {
	ApiUrl    string `yaml:"api_url,omitempty"`
	EventsUrl string `yaml:"events_url,omitempty"`
	Token     string `yaml:"token,omitempty"`
}

func configPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".murmurctl.yml"
	}
	return filepath.Join(home, ".murmurctl.yml")
}

func loadConfig() *CtlConfig {
	config := &CtlConfig{}
	data, err := os.ReadFile(configPath())
	if err != nil {
		return config
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		Err.Printf("Ignoring bad config (%s).\n", err)
		return &CtlConfig{}
	}
	return config
}

func saveConfig(config *CtlConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0600)
}

func main() {
	usage := fmt.Sprintf(`Murmur control.

The default url is:
    api_url: %s

The session token and urls are stored in ~/.murmurctl.yml after login.

Usage:
    murmurctl login [--api_url=<api_url>] [--events_url=<events_url>]
    murmurctl whoami
    murmurctl profile [<username>]
    murmurctl feed [--home] [--pages=<pages>]
    murmurctl post <text>...
    murmurctl reply --post=<post_id> <text>...
    murmurctl like --post=<post_id>
    murmurctl unlike --post=<post_id>
    murmurctl repost --post=<post_id>
    murmurctl undo-repost --post=<post_id>
    murmurctl delete --post=<post_id>
    murmurctl follow <username>
    murmurctl unfollow <username>
    murmurctl notifications [--mark-read]
    murmurctl trending

Options:
    -h --help             Show this screen.
    --version             Show version.
    --api_url=<api_url>
    --events_url=<events_url>
    --home                Show the home feed instead of the global feed.
    --pages=<pages>       Fetch this many pages [default: 1].
    --post=<post_id>      Post id.
    --mark-read           Mark all notifications read after listing.`, DefaultApiUrl)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], MurmurCtlVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if whoami_, _ := opts.Bool("whoami"); whoami_ {
		whoami(opts)
	} else if profile_, _ := opts.Bool("profile"); profile_ {
		profile(opts)
	} else if feed_, _ := opts.Bool("feed"); feed_ {
		feed(opts)
	} else if post_, _ := opts.Bool("post"); post_ {
		post(opts)
	} else if reply_, _ := opts.Bool("reply"); reply_ {
		reply(opts)
	} else if like_, _ := opts.Bool("like"); like_ {
		like(opts)
	} else if unlike_, _ := opts.Bool("unlike"); unlike_ {
		unlike(opts)
	} else if repost_, _ := opts.Bool("repost"); repost_ {
		repost(opts)
	} else if undoRepost_, _ := opts.Bool("undo-repost"); undoRepost_ {
		undoRepost(opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		deletePost(opts)
	} else if follow_, _ := opts.Bool("follow"); follow_ {
		follow(opts)
	} else if unfollow_, _ := opts.Bool("unfollow"); unfollow_ {
		unfollow(opts)
	} else if notifications_, _ := opts.Bool("notifications"); notifications_ {
		notifications(opts)
	} else if trending_, _ := opts.Bool("trending"); trending_ {
		trending(opts)
	}
}

// prompts for a session token without echo and stores it with the urls
func login(opts docopt.Opts) {
	config := loadConfig()

	if apiUrl, err := opts.String("--api_url"); err == nil && apiUrl != "" {
		config.ApiUrl = apiUrl
	}
	if config.ApiUrl == "" {
		config.ApiUrl = DefaultApiUrl
	}
	if eventsUrl, err := opts.String("--events_url"); err == nil && eventsUrl != "" {
		config.EventsUrl = eventsUrl
	}

	fmt.Printf("Session token: ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Printf("\n")
	if err != nil {
		Err.Fatalf("Could not read token (%s).\n", err)
	}
	token := strings.TrimSpace(string(tokenBytes))

	session, err := murmur.ParseSessionToken(token)
	if err != nil {
		Err.Fatalf("Bad token (%s).\n", err)
	}
	if session.Expired() {
		Err.Fatalf("Token is expired.\n")
	}

	config.Token = token
	if err := saveConfig(config); err != nil {
		Err.Fatalf("Could not save config (%s).\n", err)
	}
	Out.Printf("Logged in as %s.\n", session.Principal)
}

func newClient() (context.Context, context.CancelFunc, *murmur.Client) {
	config := loadConfig()
	if config.Token == "" {
		Err.Fatalf("Not logged in. Run `murmurctl login` first.\n")
	}
	apiUrl := config.ApiUrl
	if apiUrl == "" {
		apiUrl = DefaultApiUrl
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	client := murmur.NewClientWithDefaults(cancelCtx, apiUrl)
	if _, err := client.SetSessionToken(config.Token); err != nil {
		Err.Fatalf("Bad stored token (%s). Run `murmurctl login` again.\n", err)
	}
	return cancelCtx, cancel, client
}

func whoami(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	session := client.Session()
	userProfile, err := client.Queries().UserProfile(ctx, session.Principal)
	if err != nil {
		Out.Printf("%s\n", session.Principal)
		return
	}
	Out.Printf("%s\n", formatWhoami(session, userProfile))
}

// a nil profile is a valid "doesn't exist" result, not an error
func formatWhoami(session *murmur.Session, userProfile *murmur.UserProfileResponse) string {
	if userProfile == nil {
		return fmt.Sprintf("%s (no profile set up yet)", session.Principal)
	}
	return fmt.Sprintf("@%s (%s)", userProfile.Username, session.Principal)
}

func formatProfile(username string, userProfile *murmur.UserProfileResponse) string {
	if userProfile == nil {
		return fmt.Sprintf("No profile for @%s.", username)
	}
	return fmt.Sprintf(
		"@%s  %s\n%s\n%d posts, %d followers, %d following",
		userProfile.Username,
		userProfile.DisplayName,
		userProfile.Bio,
		userProfile.PostsCount,
		userProfile.FollowersCount,
		userProfile.FollowingCount,
	)
}

func profile(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	username, _ := opts.String("<username>")
	if username == "" {
		ownProfile, err := client.Queries().Profile(ctx)
		if err != nil {
			Err.Fatalf("Could not load profile (%s).\n", err)
		}
		if ownProfile == nil {
			Out.Printf("No profile set up yet.\n")
			return
		}
		Out.Printf("@%s  %s\n%s\n", ownProfile.Username, ownProfile.DisplayName, ownProfile.Bio)
		return
	}

	userProfile, err := client.Queries().ProfileByUsername(ctx, username)
	if err != nil {
		Err.Fatalf("Could not load profile (%s).\n", err)
	}
	Out.Printf("%s\n", formatProfile(username, userProfile))
}

func feed(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	var view *murmur.FeedView
	if home_, _ := opts.Bool("--home"); home_ {
		view = client.Queries().HomeFeed()
	} else {
		view = client.Queries().GlobalFeed()
	}

	pages := 1
	if pages_, err := opts.Int("--pages"); err == nil && 0 < pages_ {
		pages = pages_
	}

	posts, err := view.Posts(ctx)
	if err != nil {
		Err.Fatalf("Could not load feed (%s).\n", err)
	}
	for i := 1; i < pages; i += 1 {
		more, err := view.FetchNextPage(ctx)
		if err != nil {
			Err.Printf("Could not load page %d (%s).\n", i+1, err)
			break
		}
		if !more {
			break
		}
	}
	posts, err = view.Posts(ctx)
	if err != nil {
		Err.Fatalf("Could not load feed (%s).\n", err)
	}

	for _, p := range posts {
		printPost(p)
	}
	if !view.HasMore() {
		Out.Printf("(end of feed)\n")
	}
}

func printPost(p *murmur.Post) {
	Out.Printf("[%s] @%s: %s  (%d likes, %d reposts, %d replies)\n",
		p.Id, p.AuthorUsername, p.Text, p.LikeCount, p.RepostCount, p.ReplyCount)
}

func postText(opts docopt.Opts) string {
	texts, _ := opts["<text>"].([]string)
	return strings.Join(texts, " ")
}

func postId(opts docopt.Opts) murmur.PostId {
	postIdStr, _ := opts.String("--post")
	postId, err := murmur.ParsePostId(postIdStr)
	if err != nil {
		Err.Fatalf("Invalid post id (%s).\n", err)
	}
	return postId
}

func post(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	created, err := client.Coordinator().CreatePost(ctx, postText(opts), nil, "")
	if err != nil {
		Err.Fatalf("Could not post (%s).\n", err)
	}
	Out.Printf("Posted %s.\n", created.Id)
}

func reply(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	created, err := client.Coordinator().CreateReply(ctx, postId(opts), postText(opts), nil, "")
	if err != nil {
		Err.Fatalf("Could not reply (%s).\n", err)
	}
	Out.Printf("Replied %s.\n", created.Id)
}

func like(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	if err := client.Coordinator().LikePost(ctx, postId(opts)); err != nil {
		Err.Fatalf("Could not like (%s).\n", err)
	}
	Out.Printf("Liked.\n")
}

func unlike(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	if err := client.Coordinator().UnlikePost(ctx, postId(opts)); err != nil {
		Err.Fatalf("Could not unlike (%s).\n", err)
	}
	Out.Printf("Unliked.\n")
}

func repost(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	if err := client.Coordinator().RepostPost(ctx, postId(opts)); err != nil {
		Err.Fatalf("Could not repost (%s).\n", err)
	}
	Out.Printf("Reposted.\n")
}

func undoRepost(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	if err := client.Coordinator().UndoRepost(ctx, postId(opts)); err != nil {
		Err.Fatalf("Could not undo repost (%s).\n", err)
	}
	Out.Printf("Repost undone.\n")
}

func deletePost(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	if err := client.Coordinator().DeletePost(ctx, postId(opts)); err != nil {
		Err.Fatalf("Could not delete (%s).\n", err)
	}
	Out.Printf("Deleted.\n")
}

func resolvePrincipal(ctx context.Context, client *murmur.Client, username string) murmur.Principal {
	principal, err := client.Queries().PrincipalByUsername(ctx, username)
	if err != nil {
		Err.Fatalf("Could not resolve @%s (%s).\n", username, err)
	}
	if principal == nil {
		Err.Fatalf("No such user @%s.\n", username)
	}
	return *principal
}

func follow(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	username, _ := opts.String("<username>")
	user := resolvePrincipal(ctx, client, username)
	if err := client.Coordinator().FollowUser(ctx, user); err != nil {
		Err.Fatalf("Could not follow (%s).\n", err)
	}
	Out.Printf("Following @%s.\n", username)
}

func unfollow(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	username, _ := opts.String("<username>")
	user := resolvePrincipal(ctx, client, username)
	if err := client.Coordinator().UnfollowUser(ctx, user); err != nil {
		Err.Fatalf("Could not unfollow (%s).\n", err)
	}
	Out.Printf("Unfollowed @%s.\n", username)
}

func notifications(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	view := client.Queries().Notifications()
	items, err := view.Items(ctx)
	if err != nil {
		Err.Fatalf("Could not load notifications (%s).\n", err)
	}
	for _, n := range items {
		read := " "
		if n.IsRead {
			read = "r"
		}
		Out.Printf("[%s] %s %s by @%s\n", read, n.Id, n.NotificationType.Kind, n.ActorUsername)
	}

	if markRead_, _ := opts.Bool("--mark-read"); markRead_ {
		if err := client.Coordinator().MarkAllNotificationsRead(ctx); err != nil {
			Err.Fatalf("Could not mark read (%s).\n", err)
		}
		Out.Printf("Marked all read.\n")
	}
}

func trending(opts docopt.Opts) {
	ctx, cancel, client := newClient()
	defer cancel()
	defer client.Close()

	hashtags, err := client.Queries().TrendingHashtags(ctx)
	if err != nil {
		Err.Fatalf("Could not load trending hashtags (%s).\n", err)
	}
	for _, hashtag := range hashtags {
		Out.Printf("#%s (%d posts)\n", hashtag.Tag, hashtag.Count)
	}
}
