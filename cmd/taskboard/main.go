package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/taskboard/pkg/api/client"
	"github.com/splax/taskboard/pkg/config"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignup(args)
	case "login":
		err = commandLogin(args)
	case "whoami":
		err = commandWhoami(args)
	case "task", "tasks":
		err = commandTask(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}

	cfg, client, err := setup(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	session, err := client.Signup(ctx, *name, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = session.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("signed up as %s (%s)\n", session.User.Email, session.User.ID)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}

	cfg, client, err := setup(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	session, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = session.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("login successful, token expires %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func commandWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	fs.Parse(args)

	cfg, client, err := setup("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	user, err := client.Me(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%s\n", user.ID, user.Name, user.Email)
	return nil
}

func commandTask(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: taskboard task [list|show|create|update|delete]")
	}
	sub := args[0]
	switch sub {
	case "list", "ls":
		return taskList(args[1:])
	case "show":
		return taskShow(args[1:])
	case "create", "add":
		return taskCreate(args[1:])
	case "update":
		return taskUpdate(args[1:])
	case "delete", "rm":
		return taskDelete(args[1:])
	default:
		return fmt.Errorf("unknown task command: %s", sub)
	}
}

func taskList(args []string) error {
	fs := flag.NewFlagSet("task list", flag.ExitOnError)
	status := fs.String("status", "", "Only show tasks with this status")
	limit := fs.Int("limit", 0, "Maximum number of tasks to display")
	fs.Parse(args)

	cfg, client, err := setup("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	tasks, err := client.ListTasks(ctx, token)
	if err != nil {
		return err
	}
	shown := 0
	for _, t := range tasks {
		if *status != "" && !strings.EqualFold(t.Status, *status) {
			continue
		}
		if *limit > 0 && shown >= *limit {
			break
		}
		printTask(t)
		shown++
	}
	return nil
}

func taskShow(args []string) error {
	fs := flag.NewFlagSet("task show", flag.ExitOnError)
	id := fs.String("id", "", "Task identifier")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	cfg, client, err := setup("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	t, err := client.GetTask(ctx, token, *id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func taskCreate(args []string) error {
	fs := flag.NewFlagSet("task create", flag.ExitOnError)
	input := taskFlags(fs)
	fs.Parse(args)

	if strings.TrimSpace(input.Title) == "" {
		return errors.New("--title is required")
	}

	cfg, client, err := setup("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	t, err := client.CreateTask(ctx, token, *input)
	if err != nil {
		return err
	}
	fmt.Printf("task created: %s (%s)\n", t.ID, t.Title)
	return nil
}

func taskUpdate(args []string) error {
	fs := flag.NewFlagSet("task update", flag.ExitOnError)
	id := fs.String("id", "", "Task identifier")
	input := taskFlags(fs)
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	if *input == (apiclient.TaskInput{}) {
		return errors.New("nothing to update")
	}

	cfg, client, err := setup("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	t, err := client.UpdateTask(ctx, token, *id, *input)
	if err != nil {
		return err
	}
	fmt.Printf("task updated: %s status=%s priority=%s\n", t.ID, t.Status, t.Priority)
	return nil
}

func taskDelete(args []string) error {
	fs := flag.NewFlagSet("task delete", flag.ExitOnError)
	id := fs.String("id", "", "Task identifier")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	cfg, client, err := setup("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext()
	defer cancel()

	if err := client.DeleteTask(ctx, token, *id); err != nil {
		return err
	}
	fmt.Println("task deleted")
	return nil
}

func taskFlags(fs *flag.FlagSet) *apiclient.TaskInput {
	in := &apiclient.TaskInput{}
	fs.StringVar(&in.Title, "title", "", "Task title")
	fs.StringVar(&in.Description, "description", "", "Task description")
	fs.StringVar(&in.Priority, "priority", "", "Priority (low|medium|high)")
	fs.StringVar(&in.Status, "status", "", "Status (pending|in-progress|completed)")
	fs.StringVar(&in.DueDate, "due", "", "Due date (YYYY-MM-DD or RFC 3339)")
	return in
}

func printTask(t apiclient.Task) {
	due := "-"
	if t.DueDate != nil {
		due = t.DueDate.Format("2006-01-02")
	}
	fmt.Printf("%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, due, t.Title)
}

func readSecret(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

// setup merges the saved config with environment defaults and an optional
// --api override, returning a ready client.
func setup(apiOverride string) (cliConfig, *apiclient.Client, error) {
	env := config.LoadCLIConfig()
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	switch {
	case strings.TrimSpace(apiOverride) != "":
		cfg.APIBaseURL = apiOverride
	case os.Getenv("TASKBOARD_API") != "" || cfg.APIBaseURL == "":
		cfg.APIBaseURL = env.APIBaseURL
	}
	client, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(env.Timeout))
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func requireToken(cfg cliConfig) (string, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return "", errors.New("please login first using 'taskboard login'")
	}
	return token, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "taskboard", "config.json"), nil
}

func printUsage() {
	fmt.Printf("taskboard CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	taskboard signup --name Ann --email user@example.com [--password secret] [--api http://localhost:4000]
	taskboard login --email user@example.com [--password secret] [--api http://localhost:4000]
	taskboard whoami
	taskboard task list [--status pending] [--limit N]
	taskboard task show --id <task-id>
	taskboard task create --title <title> [--description text] [--priority low|medium|high] [--status s] [--due YYYY-MM-DD]
	taskboard task update --id <task-id> [--title t] [--description d] [--priority p] [--status s] [--due YYYY-MM-DD]
	taskboard task delete --id <task-id>
	taskboard version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
