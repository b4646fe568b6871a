// Command inquest runs a multi-worker root-cause debate over a production
// incident and prints the final verdict.
//
// Usage:
//
//	inquest -incident incident.yaml [-config config.json] [-data dir]
//	inquest -resume <session-id> -incident incident.yaml
//	inquest -init-secrets
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"inquest/internal/kernel"
	"inquest/pkg/config"
	"inquest/pkg/debate"
	"inquest/pkg/incident"
	"inquest/pkg/logx"
)

func main() {
	var configPath string
	var incidentPath string
	var resumeID string
	var dataDir string
	var initSecrets bool
	var jsonOut bool
	flag.StringVar(&configPath, "config", "", "Path to JSON config file (default: built-in defaults)")
	flag.StringVar(&incidentPath, "incident", "", "Path to YAML incident descriptor")
	flag.StringVar(&resumeID, "resume", "", "Resume a checkpointed session by id")
	flag.StringVar(&dataDir, "data", ".inquest", "Data directory for event logs and checkpoints")
	flag.BoolVar(&initSecrets, "init-secrets", false, "Create an encrypted API key file from the environment and exit")
	flag.BoolVar(&jsonOut, "json", false, "Print the full session snapshot as JSON instead of the verdict summary")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("INQUEST_CONFIG")
	}

	if initSecrets {
		if err := initSecretsFile("."); err != nil {
			log.Fatalf("init secrets: %v", err)
		}
		return
	}

	if incidentPath == "" {
		flag.Usage()
		log.Fatal("an incident descriptor is required (-incident)")
	}

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := unlockSecrets("."); err != nil {
		log.Fatalf("unlock secrets: %v", err)
	}

	inc, err := incident.Load(incidentPath)
	if err != nil {
		log.Fatalf("load incident: %v", err)
	}

	if err := run(cfg, inc, resumeID, dataDir, jsonOut); err != nil {
		log.Fatalf("inquest: %v", err)
	}
}

func run(cfg config.Config, inc incident.Incident, resumeID, dataDir string, jsonOut bool) error {
	logger := logx.NewLogger("cli")

	k, err := kernel.New(context.Background(), cfg, dataDir)
	if err != nil {
		return fmt.Errorf("create kernel: %w", err)
	}
	if err := k.Start(); err != nil {
		return err
	}
	defer func() {
		if stopErr := k.Stop(); stopErr != nil {
			logger.Warn("shutdown: %v", stopErr)
		}
	}()

	var sess *debate.Session
	ctx := context.Background()
	if resumeID != "" {
		sess, err = k.ResumeSession(resumeID, inc)
		if err != nil {
			return err
		}
		if err := sess.Resume(ctx, k.Store); err != nil {
			return err
		}
	} else {
		sess, err = k.NewSession(inc)
		if err != nil {
			return err
		}
		if err := sess.Start(ctx); err != nil {
			return err
		}
	}
	logger.Info("session %s started for incident %q", sess.ID, inc.Title)

	// First signal cancels the session; the controller winds down at the
	// next state boundary and we still print what it had.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Info("received %v, cancelling session", sig)
		sess.Cancel()
	}()

	final, runErr := sess.Wait()
	if runErr != nil {
		logger.Warn("session ended early: %v", runErr)
	}

	if jsonOut {
		out, err := json.MarshalIndent(sess.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		fmt.Println(string(out))
		return runErr
	}

	printVerdict(final)
	return runErr
}

func printVerdict(st debate.SessionState) {
	fmt.Printf("session %s: %s after %d round(s), %d turn(s)\n",
		st.ID, st.Status, st.Round.CurrentRound, len(st.Turns))
	if st.Verdict == nil {
		fmt.Println("no verdict produced")
		return
	}
	v := st.Verdict
	fmt.Printf("consensus: %v (confidence %.2f)\n", st.ConsensusReached, v.RootCause.Confidence)
	fmt.Printf("root cause [%s]: %s\n", v.RootCause.Category, v.RootCause.Summary)
	if v.FixRecommendation != "" {
		fmt.Printf("fix: %s\n", v.FixRecommendation)
	}
	fmt.Printf("risk: %s\n", v.Risk.Level)
	for _, f := range v.Risk.Factors {
		fmt.Printf("  - %s\n", f)
	}
	for _, d := range v.Dissents {
		fmt.Printf("dissent: %s\n", d)
	}
}

// unlockSecrets decrypts the project secrets file into memory when one
// exists. Without a file, API keys come from the environment.
func unlockSecrets(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}
	fmt.Print("Secrets password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	secrets, err := config.DecryptSecretsFile(projectDir, string(password))
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// initSecretsFile collects provider API keys from the environment and
// writes them to an encrypted file so they need not live in the shell.
func initSecretsFile(projectDir string) error {
	secrets := map[string]string{}
	for _, name := range []string{
		config.SecretAnthropicAPIKey,
		config.SecretOpenAIAPIKey,
		config.SecretGeminiAPIKey,
	} {
		if v := os.Getenv(name); v != "" {
			secrets[name] = v
		}
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no provider API keys found in environment")
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	if err := config.EncryptSecretsFile(projectDir, password, secrets); err != nil {
		return err
	}
	fmt.Printf("wrote encrypted secrets file with %d key(s)\n", len(secrets))
	return nil
}

func promptNewPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for the secrets file: ")
		first, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		fmt.Print("Confirm password: ")
		second, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(first) == string(second) && len(first) > 0 {
			return string(first), nil
		}
		fmt.Println("passwords did not match, try again")
	}
	return "", fmt.Errorf("password confirmation failed after %d attempts", maxAttempts)
}
