// Command chatcli is a line-oriented terminal client for the group chat.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"wellness-chat/internal/chatview"
	"wellness-chat/internal/client"
	"wellness-chat/internal/config"
	"wellness-chat/internal/logger"
	"wellness-chat/internal/models"
	"wellness-chat/internal/prefs"
	"wellness-chat/internal/session"
	"wellness-chat/internal/typing"
	"wellness-chat/internal/upload"
)

const help = `commands:
  /groups              list groups
  /search <text>       filter groups by name
  /create <name>       create a group
  /open <id>           open a group
  /join <id>           join and open a group
  /leave <id>          leave a group
  /who                 list users and who is online
  /upload <path>       send a file to the open group
  /dark                toggle dark mode
  /signout             sign out
  /quit                exit
anything else is sent to the open group`

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg.App.Env, cfg.App.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := client.New(cfg.Client.ServerURL, logr)
	if err != nil {
		logr.Fatal("init client", zap.Error(err))
	}

	store, err := prefs.Open(cfg.Client.PrefsPath)
	if err != nil {
		logr.Fatal("open preferences", zap.String("path", cfg.Client.PrefsPath), zap.Error(err))
	}
	defer store.Close()

	in := bufio.NewReader(os.Stdin)
	var consent session.ConsentFlow = session.PromptConsent{In: in, Out: os.Stdout}
	if cfg.Client.IDToken != "" {
		consent = session.StaticConsent(cfg.Client.IDToken)
	}
	identity := session.NewAdapter(api, consent, logr)

	typingSignal := typing.NewSignal(api, cfg.Client.TypingDelay, logr)
	defer typingSignal.Close()

	view := &terminalView{out: os.Stdout}
	ctrl := chatview.New(chatview.NewRemote(api), typingSignal, upload.NewUploader(api, logr), store, view, logr)
	detach := ctrl.Attach(ctx, identity)
	defer detach()

	user, err := identity.SignIn(ctx)
	if err != nil {
		logr.Fatal("sign in", zap.Error(err))
	}
	view.setDark(ctrl.DarkMode(ctx))
	fmt.Fprintf(os.Stdout, "signed in as %s\n%s\n", user.Email, help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if line = strings.TrimRight(line, "\r\n"); line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := run(ctx, api, ctrl, identity, view, line); quit {
				return
			}
		}
	}
}

func run(ctx context.Context, api *client.Client, ctrl *chatview.Controller, identity *session.Adapter, view *terminalView, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/quit":
		return true
	case "/help":
		fmt.Fprintln(view.out, help)
	case "/groups":
		ctrl.Search("")
	case "/search":
		ctrl.Search(arg)
	case "/create":
		var g models.Group
		g, err = ctrl.CreateGroup(ctx, arg)
		if err == nil {
			view.printf("created %s (%s)", g.Name, g.ID)
		}
	case "/open":
		err = ctrl.Select(ctx, arg)
	case "/join":
		err = ctrl.Join(ctx, arg)
	case "/leave":
		err = ctrl.Leave(ctx, arg)
	case "/who":
		err = listUsers(ctx, api, view)
	case "/upload":
		err = sendFile(ctx, ctrl, arg)
	case "/dark":
		var on bool
		on, err = ctrl.ToggleDarkMode(ctx)
		if err == nil {
			view.setDark(on)
		}
	case "/signout":
		err = identity.SignOut(ctx)
		if err == nil {
			return true
		}
	default:
		ctrl.Typed(ctx)
		var restore string
		restore, err = ctrl.Send(ctx, line)
		if err != nil && restore != "" {
			view.printf("not sent: %s", restore)
		}
	}
	if err != nil {
		view.printf("error: %v", err)
	}
	return false
}

func listUsers(ctx context.Context, api *client.Client, view *terminalView) error {
	users, err := api.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		state := "offline"
		if u.Online {
			state = "online"
		}
		view.printf("%-8s %s <%s>", state, u.DisplayName, u.Email)
	}
	return nil
}

func sendFile(ctx context.Context, ctrl *chatview.Controller, path string) error {
	if path == "" {
		return errors.New("usage: /upload <path>")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = ctrl.SendAttachment(ctx, "", filepath.Base(path), f, info.Size())
	return err
}
