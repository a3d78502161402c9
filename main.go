package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"charchat/chat"
	"charchat/db"
	"charchat/llm"
	"charchat/utils"
)

func main() {
	// .env is optional; environment variables win over config defaults.
	_ = godotenv.Load()

	configPath, err := utils.EnsureDefaultConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config setup failed: %v\n", err)
		os.Exit(1)
	}
	config, err := utils.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.DefaultLogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		logger = utils.NopLogger()
	}
	defer logger.Close()

	dbPath := config.Data.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	store, err := db.New(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.SeedCharacters(chat.BuiltinCharacters()); err != nil {
		logger.Warn("character seeding failed: %v", err)
	}
	if _, err := store.MigrateFromLegacyStore("legacy_conversations", nil); err != nil {
		logger.Warn("legacy migration failed: %v", err)
	}

	creds := llm.NewCredentialCache(store)
	creds.Subscribe(func(p llm.Provider) {
		logger.Debug("credential changed for provider %s", p)
	})
	importEnvCredentials(creds, logger)

	facade := llm.NewFacade(creds, llm.Options{
		OpenAIBaseURL:     config.Providers["openai"].BaseURL,
		GeminiBaseURL:     config.Providers["google-ai"].BaseURL,
		OpenRouterBaseURL: config.Providers["openrouter"].BaseURL,
		Referer:           config.App.Referer,
		AppTitle:          config.App.AppTitle,
	}, logger)

	provider := llm.Provider(config.App.DefaultProvider)
	if env := os.Getenv("CHARCHAT_PROVIDER"); env != "" {
		provider = llm.Provider(env)
	}
	if err := facade.SetProvider(provider); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	manager := chat.NewManager(store, facade, logger)
	defer manager.Close()
	providerCfg := config.Providers[string(provider)]
	if providerCfg.DefaultModel != "" {
		manager.SetModel(providerCfg.DefaultModel)
	}
	manager.SetMaxTokens(providerCfg.MaxTokens)
	manager.SetDefaultTemperature(providerCfg.Temperature)

	runREPL(manager, facade, creds, store, logger)
}

// importEnvCredentials picks up well-known environment variables so the
// client is usable without a saved key.
func importEnvCredentials(creds *llm.CredentialCache, logger *utils.Logger) {
	envKeys := map[llm.Provider]string{
		llm.ProviderOpenAI:     "OPENAI_API_KEY",
		llm.ProviderGoogleAI:   "GEMINI_API_KEY",
		llm.ProviderOpenRouter: "OPENROUTER_API_KEY",
	}
	for provider, envVar := range envKeys {
		key := os.Getenv(envVar)
		if key == "" || creds.Has(provider) {
			continue
		}
		if err := creds.Save(provider, key); err != nil {
			logger.Warn("failed to store %s credential: %v", provider, err)
		}
	}
}

func runREPL(manager *chat.Manager, facade *llm.Facade, creds *llm.CredentialCache, store *db.DB, logger *utils.Logger) {
	fmt.Println("charchat — type /help for commands")
	printConversations(manager)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	ctx := context.Background()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, line, manager, facade, creds, store); quit {
				return
			}
			continue
		}

		id := manager.Selected()
		if id == "" {
			fmt.Println("no conversation selected; use /new or /select")
			continue
		}
		fmt.Print("… ")
		_, err := manager.StreamMessage(ctx, id, line, func(chunk string) {
			fmt.Print(chunk)
		})
		fmt.Println()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			logger.Error("completion failed: %v", err)
		}
	}
}

func runCommand(ctx context.Context, line string, manager *chat.Manager, facade *llm.Facade, creds *llm.CredentialCache, store *db.DB) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`commands:
  /new <character>      start a conversation with a built-in character
  /list                 list conversations, newest activity first
  /select <n>           select the n-th listed conversation
  /search <text>        search conversations
  /dup                  duplicate the selected conversation
  /regen                regenerate the last reply
  /rename <title>       rename the selected conversation
  /delete               delete the selected conversation
  /provider <name>      switch provider (openai, google-ai, ollama, openrouter)
  /key <provider> <key> save an API key
  /models               list models for the active provider
  /stats                show database statistics
  /quit                 exit`)

	case "/new":
		name := strings.ToLower(rest)
		for _, ch := range chat.BuiltinCharacters() {
			if strings.ToLower(ch.Name) == name {
				conv := manager.NewConversation(ch, userName())
				fmt.Printf("started %q\n", conv.Title)
				for _, greeting := range conv.InitialMessages {
					fmt.Printf("%s: %s\n", conv.CharacterName, greeting)
				}
				return false
			}
		}
		fmt.Printf("unknown character %q; built-ins:", rest)
		for _, ch := range chat.BuiltinCharacters() {
			fmt.Printf(" %s", ch.Name)
		}
		fmt.Println()

	case "/list":
		printConversations(manager)

	case "/select":
		convs := manager.SortedByRecency()
		idx := parseIndex(args, len(convs))
		if idx < 0 {
			fmt.Println("usage: /select <n>")
			return false
		}
		if err := manager.Select(convs[idx].ID); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("selected %q\n", convs[idx].Title)

	case "/search":
		for i, c := range manager.Search(rest) {
			fmt.Printf("%2d. %s (%s)\n", i+1, c.Title, c.CharacterName)
		}

	case "/dup":
		if manager.Selected() == "" {
			fmt.Println("no conversation selected")
			return false
		}
		clone, err := manager.Duplicate(manager.Selected())
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("created %q\n", clone.Title)

	case "/regen":
		id := manager.Selected()
		if id == "" {
			fmt.Println("no conversation selected")
			return false
		}
		msg, err := manager.RegenerateReply(ctx, id)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Println(msg.Text())

	case "/rename":
		if err := manager.RenameConversation(manager.Selected(), rest); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/delete":
		if err := manager.DeleteConversation(manager.Selected()); err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Println("deleted")
		}

	case "/provider":
		if err := facade.SetProvider(llm.Provider(rest)); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		if name, err := llm.DisplayName(facade.Provider()); err == nil {
			fmt.Printf("using %s\n", name)
		}

	case "/key":
		if len(args) != 2 {
			fmt.Println("usage: /key <provider> <key>")
			return false
		}
		adapter, err := facade.Adapter(llm.Provider(args[0]))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		if err := creds.Save(adapter.Provider(), args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Println("saved")

	case "/models":
		models, err := facade.ListModels(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		for _, info := range models {
			if info.Tier != "" {
				fmt.Printf("  %s (%s)\n", info.ID, info.Tier)
			} else {
				fmt.Printf("  %s\n", info.ID)
			}
		}

	case "/stats":
		stats, err := store.GetStats()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("conversations: %d  messages: %d  characters: %d  db size: %d bytes\n",
			stats.ConversationCount, stats.MessageCount, stats.CharacterCount, stats.DBSizeBytes)

	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return false
}

func printConversations(manager *chat.Manager) {
	convs := manager.SortedByRecency()
	if len(convs) == 0 {
		fmt.Println("no conversations yet; /new <character> to start one")
		return
	}
	for i, c := range convs {
		marker := " "
		if c.ID == manager.Selected() {
			marker = "*"
		}
		fmt.Printf("%s%2d. %s (%s, %d messages)\n", marker, i+1, c.Title, c.CharacterName, len(c.Messages))
	}
}

func parseIndex(args []string, max int) int {
	if len(args) != 1 {
		return -1
	}
	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 || n > max {
		return -1
	}
	return n - 1
}

func userName() string {
	if name := os.Getenv("CHARCHAT_USER"); name != "" {
		return name
	}
	return "You"
}
