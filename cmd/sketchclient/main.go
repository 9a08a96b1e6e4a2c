package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manpreetbhatti/sketchroom/internal/client"
	"github.com/manpreetbhatti/sketchroom/internal/discovery"
	"github.com/manpreetbhatti/sketchroom/internal/model"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/ws", "relay websocket URL")
		roomID   = flag.String("room", "lobby", "room to join")
		name     = flag.String("name", "", "display name (random when empty)")
		color    = flag.String("color", "", "cursor color (random when empty)")
		discover = flag.Duration("discover", 0, "find a relay on the local network for this long instead of using -url")
		demo     = flag.Bool("demo", false, "draw a rectangle and trace the cursor after joining")
		verbose  = flag.Bool("v", false, "log cursor frames")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *discover > 0 {
		relays, err := discovery.Browse(*discover)
		if err != nil {
			slog.Error("relay discovery failed", "error", err)
			os.Exit(1)
		}
		if len(relays) == 0 {
			slog.Error("no relay found", "service", discovery.ServiceType)
			os.Exit(1)
		}
		*url = relays[0].URL()
		slog.Info("using discovered relay", "name", relays[0].Name, "url", *url)
	}

	profile := client.RandomProfile()
	if *name != "" {
		profile.Name = *name
	}
	if *color != "" {
		profile.Color = *color
	}

	c := client.New(client.Config{
		URL:            *url,
		RoomID:         *roomID,
		Profile:        profile,
		CursorInterval: client.DefaultCursorInterval,
		Renderer:       logRenderer{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *demo {
		go runDemo(ctx, c)
	}

	slog.Info("joining room", "room", *roomID, "name", profile.Name, "color", profile.Color)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

// logRenderer prints the room as it changes.
type logRenderer struct{}

func (logRenderer) RenderShapes(shapes []model.Shape, draft *model.Shape) {
	if draft != nil {
		slog.Debug("drawing", "type", draft.Type, "x", draft.X, "y", draft.Y)
		return
	}
	slog.Info("canvas", "shapes", len(shapes))
}

func (logRenderer) RenderCursors(cursors []model.Cursor) {
	for _, cur := range cursors {
		slog.Debug("cursor", "user", cur.Name, "x", cur.X, "y", cur.Y)
	}
}

func (logRenderer) UserJoined(user model.User) {
	slog.Info("user joined", "name", user.Name, "color", user.Color)
}

func (logRenderer) UserLeft(userID string) {
	slog.Info("user left", "id", userID)
}

func runDemo(ctx context.Context, c *client.Client) {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	wait := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
			return true
		}
	}

	// Give the join a moment before drawing.
	for i := 0; i < 25; i++ {
		if !wait() {
			return
		}
	}

	c.BeginShape(model.ShapeRect, 100, 100)
	for i := 1; i <= 20; i++ {
		c.Move(100+float64(i)*10, 100+float64(i)*6)
		if !wait() {
			return
		}
	}
	c.EndShape()

	for i := 0; ; i++ {
		c.Move(float64(200+i%200), float64(150+(i*3)%120))
		if !wait() {
			return
		}
	}
}
