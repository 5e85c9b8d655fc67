package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/moodlog/internal/ai"
	"github.com/hpungsan/moodlog/internal/auth"
	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/mcp"
	"github.com/hpungsan/moodlog/internal/mood"
	"github.com/hpungsan/moodlog/internal/ops"
	"github.com/hpungsan/moodlog/internal/web"
)

// runtime wires the collaborators every command runs against.
type runtime struct {
	baseDir   string
	db        *sql.DB
	cfg       *config.Config
	hub       *live.Hub
	local     *auth.LocalProvider
	sessions  *auth.Manager
	analyzer  ops.Analyzer
	responder ops.Responder
}

func newRuntime(baseDir string, database *sql.DB, cfg *config.Config) *runtime {
	local := auth.NewLocalProvider(database, cfg.SessionTTL(), filepath.Join(baseDir, "session"))
	client := ai.NewClient(ai.ConfigFromApp(cfg))
	return &runtime{
		baseDir:   baseDir,
		db:        database,
		cfg:       cfg,
		hub:       live.NewHub(live.DBLoader(database)),
		local:     local,
		sessions:  auth.NewManager(local),
		analyzer:  ai.NewAnalyzer(client),
		responder: ai.NewResponder(client),
	}
}

func (rt *runtime) Close() {
	rt.sessions.Close()
	rt.hub.Close()
}

func (rt *runtime) session(ctx context.Context) (*mood.Session, error) {
	return rt.sessions.Refresh(ctx)
}

func (rt *runtime) mcpDeps() mcp.Deps {
	return mcp.Deps{
		DB:        rt.db,
		Config:    rt.cfg,
		Hub:       rt.hub,
		Sessions:  rt.sessions,
		Analyzer:  rt.analyzer,
		Responder: rt.responder,
		Version:   Version,
	}
}

func (rt *runtime) webDeps() web.Deps {
	return web.Deps{
		DB:        rt.db,
		Config:    rt.cfg,
		Hub:       rt.hub,
		Auth:      rt.local,
		Analyzer:  rt.analyzer,
		Responder: rt.responder,
		Version:   Version,
	}
}

// newCLIApp creates the CLI application with all commands. rt may be nil
// when only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "moodlog",
		Usage:   "Mood journal with AI insights",
		Version: Version,
		Commands: []*cli.Command{
			signInCmd(rt),
			signOutCmd(rt),
			whoamiCmd(rt),
			logCmd(rt),
			listCmd(rt),
			timelineCmd(rt),
			statsCmd(rt),
			insightsCmd(rt),
			tipsCmd(rt),
			askCmd(rt),
			exportCmd(rt),
			watchCmd(rt),
			serveCmd(rt),
			mcpCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func signInCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "signin",
		Usage: "Sign in with a federated identity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Value: "google", Usage: "Sign-in method: google|apple"},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Account email"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name"},
			&cli.StringFlag{Name: "photo", Usage: "Profile photo URL"},
		},
		Action: func(c *cli.Context) error {
			method, ok := auth.ParseMethod(c.String("provider"))
			if !ok {
				return outputError(errors.NewInvalidRequest("provider must be google or apple"))
			}
			claims := auth.Claims{Email: c.String("email")}
			if name := strings.TrimSpace(c.String("name")); name != "" {
				claims.DisplayName = &name
			}
			if photo := strings.TrimSpace(c.String("photo")); photo != "" {
				claims.PhotoURL = &photo
			}

			sess, err := rt.sessions.SignIn(c.Context, method, claims)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, sess)
		},
	}
}

func signOutCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "signout",
		Usage: "Sign out of the current session",
		Action: func(c *cli.Context) error {
			if err := rt.sessions.SignOut(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]bool{"signed_out": true})
		},
	}
}

func whoamiCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			if sess == nil {
				return outputError(errors.NewUnauthenticated())
			}
			return outputJSON(c, sess)
		},
	}
}

func logCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Record a mood",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mood", Aliases: []string{"m"}, Required: true, Usage: "One of: " + moodList()},
			&cli.IntFlag{Name: "intensity", Aliases: []string{"i"}, Required: true, Usage: "Intensity 1-10"},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "manual|spotify|youtube|apple_music (default manual)"},
			&cli.StringSliceFlag{Name: "track", Usage: "Track playing (repeatable)"},
			&cli.StringSliceFlag{Name: "genre", Usage: "Genre (repeatable)"},
			&cli.Float64Flag{Name: "tempo", Usage: "Tempo in BPM"},
			&cli.Float64Flag{Name: "energy", Usage: "Energy 0-1"},
		},
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}

			meta := &mood.Metadata{
				Tracks: c.StringSlice("track"),
				Genres: c.StringSlice("genre"),
			}
			if c.IsSet("tempo") {
				tempo := c.Float64("tempo")
				meta.Tempo = &tempo
			}
			if c.IsSet("energy") {
				energy := c.Float64("energy")
				meta.Energy = &energy
			}

			output, err := ops.Append(c.Context, rt.db, rt.hub, sess, ops.AppendInput{
				Mood:      c.String("mood"),
				Intensity: c.Int("intensity"),
				Source:    c.String("source"),
				Metadata:  meta,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func listCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entries, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Skip first N results"},
		},
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.List(rt.db, sess, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func timelineCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "timeline",
		Usage: "Show chart points for recent entries",
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Timeline(rt.db, sess)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func statsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show mood counts and intensity statistics",
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Stats(rt.db, sess)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func insightsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "insights",
		Usage: "Analyze recent entries",
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Insights(c.Context, rt.db, rt.analyzer, sess)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func tipsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "tips",
		Usage: "Suggest quick actions based on recent entries",
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Tips(c.Context, rt.db, rt.analyzer, sess)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func askCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question about your moods (or pipe it via stdin)",
		ArgsUsage: "[question]",
		Action: func(c *cli.Context) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				question = text
			}

			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Ask(c.Context, rt.db, rt.responder, sess, question)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func exportCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export entries to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "Output path (default: <base>/exports/moods-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			sess, err := rt.session(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Export(c.Context, rt.db, rt.cfg, rt.baseDir, sess, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// watchSnapshot is one line of `moodlog watch` output.
type watchSnapshot struct {
	Type    string       `json:"type"`
	Seq     uint64       `json:"seq,omitempty"`
	Entries []mood.Entry `json:"entries,omitempty"`
}

func watchCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print the entry list whenever it changes (one JSON line per snapshot)",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Value: 2 * time.Second, Usage: "How often to check for changes from other processes"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			sess, err := rt.session(ctx)
			if err != nil {
				return outputError(err)
			}
			if sess == nil {
				return outputError(errors.NewUnauthenticated())
			}
			if c.Duration("interval") <= 0 {
				return outputError(errors.NewInvalidRequest("interval must be positive"))
			}

			feed := live.NewFeed(rt.hub)
			defer feed.Close()
			stopFollowing := rt.sessions.OnChange(func(s *mood.Session) {
				if cur := feed.Current(); cur != nil && cur.UserID() == s.UserID() {
					return
				}
				if _, err := feed.Switch(ctx, s.UserID()); err != nil {
					log.Printf("[watch] subscribe failed: %v", err)
				}
			})
			defer stopFollowing()

			enc := json.NewEncoder(c.App.Writer)
			ticker := time.NewTicker(c.Duration("interval"))
			defer ticker.Stop()

			var last string
			for {
				sub := feed.Current()
				if sub == nil {
					return outputError(errors.NewServiceUnavailable(fmt.Errorf("no subscription")))
				}

				select {
				case <-ctx.Done():
					return nil
				case snap, ok := <-sub.Updates():
					if !ok {
						if feed.Current() != sub {
							continue
						}
						return nil
					}
					// A re-subscribe repeats the current list
					if key := snapshotKey(snap); key != last {
						last = key
						if err := enc.Encode(watchSnapshot{Type: "snapshot", Seq: snap.Seq, Entries: snap.Entries}); err != nil {
							return err
						}
					}
				case <-ticker.C:
					cur, err := rt.session(ctx)
					if err != nil {
						log.Printf("[watch] session check failed: %v", err)
						continue
					}
					if cur == nil {
						return enc.Encode(watchSnapshot{Type: "signed_out"})
					}
					if err := rt.hub.Refresh(ctx, live.DBCounter(rt.db)); err != nil {
						log.Printf("[watch] refresh failed: %v", err)
					}
				}
			}
		},
	}
}

// snapshotKey identifies a snapshot's content: entries are append-only,
// so the count and newest id change together with the list.
func snapshotKey(snap live.Snapshot) string {
	if len(snap.Entries) == 0 {
		return snap.UserID + ":0"
	}
	return fmt.Sprintf("%s:%d:%s", snap.UserID, len(snap.Entries), snap.Entries[0].ID)
}

func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the journal dashboard and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config, 127.0.0.1)"},
			&cli.IntFlag{Name: "port", Usage: "Port to listen on (default from config, 8787)"},
			&cli.DurationFlag{Name: "poll", Value: 2 * time.Second, Usage: "How often to check for entries written by other processes"},
		},
		Action: func(c *cli.Context) error {
			bind := rt.cfg.WebBind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := rt.cfg.WebPort
			if c.IsSet("port") {
				port = c.Int("port")
			}
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}
			if c.Duration("poll") <= 0 {
				return outputError(errors.NewInvalidRequest("poll must be positive"))
			}
			go rt.hub.Poll(c.Context, c.Duration("poll"), live.DBCounter(rt.db))
			return web.Run(c.Context, web.NewServer(rt.webDeps(), bind, port))
		},
	}
}

func mcpCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(rt.mcpDeps())
		},
	}
}

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var mErr *errors.MoodError
	if stderrors.As(err, &mErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func moodList() string {
	names := make([]string, len(mood.Moods))
	for i, m := range mood.Moods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
