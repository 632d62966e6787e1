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

	apiclient "github.com/splax/backendless/pkg/api/client"
)

const defaultAPIBaseURL = "http://localhost:8080"

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
	case "login":
		err = commandLogin(args)
	case "register":
		err = commandRegister(args)
	case "project":
		err = commandProject(args)
	case "deploy":
		err = commandDeploy(args)
	case "validate":
		err = commandValidate(args)
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

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: backendless login <email>")
	}
	email := fs.Arg(0)

	secret, err := readPassword(*password, false)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.Login(ctx, email, secret)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	cfg.AccessToken = resp.Tokens.AccessToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("Successfully logged in as %s\n", email)
	return nil
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return errors.New("usage: backendless register <username> <email>")
	}
	username, email := fs.Arg(0), fs.Arg(1)

	secret, err := readPassword(*password, true)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.Signup(ctx, email, username, secret)
	if err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	cfg.AccessToken = resp.Tokens.AccessToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("Successfully registered %s\n", email)
	return nil
}

func commandProject(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: backendless project [new|list]")
	}
	switch args[0] {
	case "new":
		return projectNew(args[1:])
	case "list":
		return projectList(args[1:])
	default:
		return fmt.Errorf("unknown project command: %s", args[0])
	}
}

func projectNew(args []string) error {
	fs := flag.NewFlagSet("project new", flag.ExitOnError)
	description := fs.String("description", "", "Project description")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: backendless project new <name> [--description text]")
	}

	token, client, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	project, err := client.CreateProject(ctx, token, fs.Arg(0), *description)
	if err != nil {
		return fmt.Errorf("failed to create new project: %w", err)
	}
	fmt.Printf("Successfully created new project '%s' (%s)\n", project.Name, project.ID)
	return nil
}

func projectList(args []string) error {
	fs := flag.NewFlagSet("project list", flag.ExitOnError)
	fs.Parse(args)

	token, client, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	projects, err := client.ListProjects(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	for _, p := range projects {
		fmt.Printf("%s: %s\n", p.ID, p.Name)
	}
	return nil
}

func commandDeploy(args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return errors.New("usage: backendless deploy <project-id> <project-file>")
	}
	projectID, path := fs.Arg(0), fs.Arg(1)

	project, err := loadProjectFile(path)
	if err != nil {
		return err
	}
	definition, err := project.definition()
	if err != nil {
		return err
	}
	archive, files, err := zipDirectory(project.staticDir())
	if err != nil {
		return err
	}

	token, client, err := authenticatedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deploymentID, created, err := client.CreateDeployment(ctx, token, projectID, definition)
	if err != nil {
		return fmt.Errorf("failed to upload definition: %w", err)
	}
	if !created {
		fmt.Printf("Definition unchanged, reusing deployment %s\n", deploymentID)
	}
	result, err := client.UploadStatic(ctx, token, projectID, deploymentID, archive)
	if err != nil {
		return fmt.Errorf("failed to upload static files: %w", err)
	}
	fmt.Printf("Successfully deployed %s: %d of %d files uploaded\n", deploymentID, result.Uploaded, files)
	for _, name := range result.Rejected {
		fmt.Printf("  skipped %s\n", name)
	}
	return nil
}

func commandValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: backendless validate <project-file>")
	}
	if _, err := loadProjectFile(fs.Arg(0)); err != nil {
		return fmt.Errorf("invalid project format: %w", err)
	}
	fmt.Println("Successfully validated project configuration")
	return nil
}

func readPassword(flagValue string, confirm bool) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	prompt := func(label string) (string, error) {
		fmt.Print(label)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	secret, err := prompt("Password: ")
	if err != nil {
		return "", err
	}
	if confirm {
		again, err := prompt("Repeat for confirmation: ")
		if err != nil {
			return "", err
		}
		if again != secret {
			return "", errors.New("passwords do not match")
		}
	}
	return secret, nil
}

func clientFor(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func authenticatedClient() (string, *apiclient.Client, error) {
	cfg, client, err := clientFor("")
	if err != nil {
		return "", nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return "", nil, errors.New("please login first using 'backendless login'")
	}
	return token, client, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
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
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".backendless", "config.json"), nil
}

func printUsage() {
	fmt.Printf("backendless CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	backendless register <username> <email> [--password secret] [--api ` + defaultAPIBaseURL + `]
	backendless login <email> [--password secret] [--api ` + defaultAPIBaseURL + `]
	backendless project new <name> [--description text]
	backendless project list
	backendless deploy <project-id> <project-file>
	backendless validate <project-file>
	backendless version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
