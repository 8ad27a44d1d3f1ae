package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/companion/internal/companion/app"
	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/companionsdk"
)

const usage = `usage: companion <command> [flags]

commands:
  login -email E -password P [-remember]
  logout
  whoami
  rooms
  chat -room ID [-email E -password P]
  theme [light|dark]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(app.LoadConfig())
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	err = run(ctx, application, os.Args[1], os.Args[2:])
	_ = application.Close()

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	case errors.Is(err, companionsdk.ErrNoSession), errors.Is(err, companionsdk.ErrSessionExpired):
		fmt.Fprintln(os.Stderr, "not logged in; run: companion login -email ... -password ... -remember")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "companion %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.Application, cmd string, args []string) error {
	switch cmd {
	case "login":
		return runLogin(ctx, a, args)
	case "logout":
		return a.Logout(ctx)
	case "whoami":
		return runWhoami(ctx, a)
	case "rooms":
		return runRooms(ctx, a)
	case "chat":
		return runChat(ctx, a, args)
	case "theme":
		return runTheme(ctx, a, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type credentials struct {
	email    string
	password string
}

func (c *credentials) register(fs *flag.FlagSet) {
	fs.StringVar(&c.email, "email", "", "account email")
	fs.StringVar(&c.password, "password", os.Getenv("COMPANION_PASSWORD"), "account password (or COMPANION_PASSWORD)")
}

func runLogin(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	var creds credentials
	creds.register(fs)
	remember := fs.Bool("remember", false, "keep the login across restarts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if creds.email == "" || creds.password == "" {
		return errors.New("-email and -password are required")
	}

	sess, err := a.Login(ctx, creds.email, creds.password, *remember)
	if err != nil {
		return err
	}

	id, err := sess.Identity(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (#%d)\n", id.Nickname, id.UserID)
	if !*remember {
		fmt.Println("not remembered: this login ends with the process")
	}
	return nil
}

func runWhoami(ctx context.Context, a *app.Application) error {
	sess, err := a.Session(ctx)
	if err != nil {
		return err
	}

	me, err := sess.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> #%d\n", me.Nickname, me.Email, me.ID)
	return nil
}

func runRooms(ctx context.Context, a *app.Application) error {
	sess, err := a.Session(ctx)
	if err != nil {
		return err
	}
	id, err := sess.Identity(ctx)
	if err != nil {
		return err
	}

	rooms, err := sess.ListChatRooms(ctx, id.UserID)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Println("no rooms")
		return nil
	}
	for _, r := range rooms {
		fmt.Printf("%6d  %s", r.ID, r.Name)
		if r.LastMessage != "" {
			fmt.Printf("  (%s)", r.LastMessage)
		}
		fmt.Println()
	}
	return nil
}

func runChat(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	roomID := fs.Int64("room", 0, "room id")
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for the chat connection")
	var creds credentials
	creds.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *roomID <= 0 {
		return errors.New("-room is required")
	}

	if creds.email != "" {
		if _, err := a.Login(ctx, creds.email, creds.password, false); err != nil {
			return err
		}
	}

	openCtx, cancel := context.WithTimeout(ctx, *timeout)
	room, err := a.OpenRoom(openCtx, *roomID, printMessage(os.Stdout))
	cancel()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "joined room %d; /image PATH sends a picture, Ctrl-C leaves\n", *roomID)

	lines := make(chan string)
	go scanLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			room.Leave()
			return nil
		case line, ok := <-lines:
			if !ok {
				room.Leave()
				return nil
			}
			sendLine(ctx, a, room, line)
		}
	}
}

func sendLine(ctx context.Context, a *app.Application, room *chat.Room, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if path, ok := strings.CutPrefix(line, "/image "); ok {
		f, err := os.Open(strings.TrimSpace(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "image: %v\n", err)
			return
		}
		defer f.Close()

		if _, err := room.SendImage(ctx, filepath.Base(f.Name()), f); err != nil {
			fmt.Fprintf(os.Stderr, "image: %v\n", err)
		}
		return
	}

	if out := room.Send(line); out != chat.Sent {
		a.Logger().Warn("message not sent", "outcome", out.String())
		fmt.Fprintf(os.Stderr, "message %s\n", out)
	}
}

func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func printMessage(w io.Writer) func(chat.Message) {
	return func(m chat.Message) {
		meta := m.Meta()
		ts := "--:--"
		if !meta.Timestamp.IsZero() {
			ts = meta.Timestamp.Local().Format("15:04")
		}

		switch msg := m.(type) {
		case chat.Chat:
			fmt.Fprintf(w, "[%s] %s: %s\n", ts, meta.SenderName, msg.Body)
		case chat.Image:
			fmt.Fprintf(w, "[%s] %s sent an image: %s\n", ts, meta.SenderName, msg.ImageURL)
		case chat.Join:
			fmt.Fprintf(w, "[%s] %s joined\n", ts, meta.SenderName)
		case chat.Leave:
			fmt.Fprintf(w, "[%s] %s left\n", ts, meta.SenderName)
		}
	}
}

func runTheme(ctx context.Context, a *app.Application, args []string) error {
	if len(args) == 0 {
		theme, err := a.Theme(ctx)
		if err != nil {
			return err
		}
		fmt.Println(theme)
		return nil
	}
	return a.SetTheme(ctx, args[0])
}
