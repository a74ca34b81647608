// Command drawsync is a headless room client: it joins a room, mirrors the
// shared drawing state as peers edit it, and exports the canvas as PNG
// (and optionally PDF) when it exits.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/drawsync/drawsync/internal/collab"
	"github.com/drawsync/drawsync/internal/document"
	"github.com/drawsync/drawsync/internal/netcheck"
	"github.com/drawsync/drawsync/internal/render"
	"github.com/drawsync/drawsync/internal/session"
	"github.com/drawsync/drawsync/internal/typeid"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080", "hub base URL")
	roomID := flag.String("room", typeid.NewRoomID(), "room to join")
	name := flag.String("name", "observer", "display name")
	color := flag.String("color", "#2563eb", "presence color")
	theme := flag.String("theme", "light", "export theme (light|dark)")
	outDir := flag.String("out", ".", "export directory")
	pdf := flag.Bool("pdf", false, "also export a PDF")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc, err := collab.DialRoom(ctx, *serverURL, *roomID, collab.PresencePayload{
		Name:  *name,
		Color: *color,
	})
	if err != nil {
		slog.Error("join room", "error", err)
		os.Exit(1)
	}
	defer rc.Close()

	store := document.NewStore()
	sess := session.New(store, rc)
	defer sess.Close()
	sess.SeedFromWelcome(rc.Welcome())

	rc.OnEvent(func(msg *collab.Message) {
		sess.ApplyRemote(msg)
	})

	// Activity feed: every replicated change, one line.
	for _, key := range []session.Key{
		session.EventStrokeAdded,
		session.EventStrokeErased,
		session.EventCanvasCleared,
		session.EventHistoryUndone,
		session.EventHistoryRedone,
	} {
		k := key
		if _, err := sess.Events().Hook(k, func(ctx context.Context, c session.Change) error {
			slog.Info("activity", "event", k, "remote", c.Remote, "strokes", store.Len())
			return nil
		}); err != nil {
			slog.Warn("register activity hook", "event", k, "error", err)
		}
	}

	// Network quality runs beside the core and never gates drawing.
	healthURL := httpBase(*serverURL) + "/health"
	prober := netcheck.New(healthURL, 10*time.Second)
	go prober.Run(ctx)
	go func() {
		for status := range prober.Updates() {
			if status.Degraded {
				slog.Warn("connection degraded", "quality", status.Quality, "ping", status.Ping)
			}
		}
	}()

	go func() {
		if err := rc.Listen(ctx); err != nil {
			slog.Error("room connection lost", "error", err)
			cancel()
		}
	}()

	slog.Info("mirroring room", "room", *roomID, "conn", rc.ConnID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	exportAll(store, sess, render.Theme(*theme), *outDir, *pdf)
}

func exportAll(store *document.Store, sess *session.Session, theme render.Theme, outDir string, pdf bool) {
	history := store.History()

	pngPath := filepath.Join(outDir, render.ExportFilename(time.Now()))
	f, err := os.Create(pngPath)
	if err != nil {
		slog.Error("create export file", "error", err)
		return
	}
	defer f.Close()

	if err := render.ExportPNG(f, history, sess.View(), 1920, 1080, theme); err != nil {
		slog.Error("export png", "error", err)
		os.Remove(pngPath)
	} else {
		slog.Info("exported", "path", pngPath, "strokes", len(history))
	}

	if pdf {
		pdfPath := strings.TrimSuffix(pngPath, ".png") + ".pdf"
		if err := render.ExportPDF(pdfPath, history); err != nil {
			slog.Error("export pdf", "error", err)
		} else {
			slog.Info("exported", "path", pdfPath)
		}
	}
}

// httpBase maps a ws(s) base URL to its http(s) counterpart for the health
// endpoint.
func httpBase(wsURL string) string {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://")
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://")
	}
	return wsURL
}
