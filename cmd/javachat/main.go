package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/javachat/javachat-cli/internal/chat"
	"github.com/javachat/javachat-cli/internal/export"
	"github.com/javachat/javachat-cli/internal/models"
	"github.com/javachat/javachat-cli/internal/services"
)

type app struct {
	store      *chat.Store
	controller *chat.Controller
	prefs      services.Prefs
	renderer   export.Renderer
}

func main() {
	cfg, _, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel()}))

	ids, err := cfg.idStrategy()
	if err != nil {
		log.Fatal(err)
	}

	prefs, err := services.NewPrefs(cfg.PrefsPath)
	if err != nil {
		log.Fatal(err)
	}
	defer prefs.Close()

	renderer, err := export.NewRenderer()
	if err != nil {
		log.Fatal(err)
	}

	api := services.NewClient(cfg.ServerURL, logger)
	streams := services.NewStreamClient(cfg.ServerURL, logger)
	store := chat.NewStore(api, ids, logger)
	controller := chat.NewController(store, streams, logger,
		chat.WithDeltaFunc(func(delta string) { fmt.Print(delta) }),
	)

	a := app{
		store:      store,
		controller: controller,
		prefs:      prefs,
		renderer:   renderer,
	}

	ctx := context.Background()
	if err := store.LoadConversations(ctx); err != nil {
		logger.Warn("Failed to load conversations", slog.String("err", err.Error()))
	}

	// First interrupt cancels a live generation, the next one exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if controller.Generating() {
				controller.CancelGeneration()
				fmt.Println("\n[generation cancelled]")
				continue
			}
			os.Exit(0)
		}
	}()

	fmt.Printf("javachat connected to %s (theme: %s)\n", cfg.ServerURL, prefs.Theme())
	fmt.Println("Type a message, or /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		a.run(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Failed to read input", slog.String("err", err.Error()))
	}
}

func (a app) run(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		a.send(ctx, line)
		return
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Println(`Commands:
  /list            list conversations, most recent first
  /new             start a new conversation
  /open <n>        open conversation n from /list
  /delete <n>      delete conversation n from /list
  /title           regenerate the active conversation's title
  /export <path>   export the active conversation as HTML
  /theme           toggle between light and dark
  /cancel          cancel the in-flight generation
  /quit            exit`)
	case "/list":
		a.list()
	case "/new":
		if _, err := a.store.CreateConversation(ctx); err != nil {
			fmt.Println("error:", err)
		}
	case "/open":
		a.open(ctx, arg)
	case "/delete":
		a.delete(ctx, arg)
	case "/title":
		done, err := a.controller.GenerateTitle(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		<-done
		if conversation := a.store.ActiveConversation(); conversation != nil {
			fmt.Println("title:", conversation.Title)
		}
	case "/export":
		a.export(arg)
	case "/theme":
		theme, err := a.prefs.ToggleTheme()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("theme:", theme)
	case "/cancel":
		a.controller.CancelGeneration()
	default:
		fmt.Println("unknown command:", cmd)
	}
}

func (a app) send(ctx context.Context, content string) {
	done, err := a.controller.SendMessage(ctx, content)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Print("assistant> ")
	<-done
	fmt.Println()
}

func (a app) list() {
	conversations := a.store.SortedConversations()
	if len(conversations) == 0 {
		fmt.Println("no conversations")
		return
	}
	activeID := a.store.ActiveID()
	for i, conversation := range conversations {
		marker := "  "
		if conversation.ID == activeID {
			marker = "* "
		}
		fmt.Printf("%s%2d  %s  (%s)\n", marker, i+1, conversation.Title,
			conversation.UpdateTime.Format("2006-01-02 15:04"))
	}
}

func (a app) open(ctx context.Context, arg string) {
	conversation := a.pick(arg)
	if conversation == nil {
		return
	}
	a.store.SetActive(conversation.ID)
	if err := a.store.LoadMessages(ctx, conversation.ID); err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, msg := range a.store.Conversation(conversation.ID).Messages {
		fmt.Printf("%s> %s\n", msg.Role, msg.Content)
	}
}

func (a app) delete(ctx context.Context, arg string) {
	conversation := a.pick(arg)
	if conversation == nil {
		return
	}
	if err := a.store.DeleteConversation(ctx, conversation.ID); err != nil {
		fmt.Println("error:", err)
	}
}

func (a app) export(path string) {
	if path == "" {
		fmt.Println("usage: /export <path>")
		return
	}
	conversation := a.store.ActiveConversation()
	if conversation == nil {
		fmt.Println("no active conversation")
		return
	}

	f, err := os.Create(path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer f.Close()

	if err := a.renderer.Transcript(f, conversation); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("exported to", path)
}

// pick resolves a 1-based index into the sorted conversation list.
func (a app) pick(arg string) *models.Conversation {
	conversations := a.store.SortedConversations()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(conversations) {
		fmt.Println("usage: give a conversation number from /list")
		return nil
	}
	return conversations[n-1]
}
