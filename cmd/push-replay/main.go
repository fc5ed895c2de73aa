package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/webhook"
	"github.com/okian/homework/internal/replay"
	"github.com/okian/homework/pkg/logger"
)

// Default configuration constants.
const (
	defaultParticipants = 100
	defaultTopN         = 20
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		participants = flag.Int("participants", defaultParticipants, "Number of synthetic participants")
		maxWeeks     = flag.Int("max-weeks", curriculum.Weeks, "Most weeks one participant completes")
		topN         = flag.Int("top", defaultTopN, "Leaderboard entries to check")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		secret       = flag.String("secret", os.Getenv("HW_WEBHOOK_SECRET"), "Webhook secret")
		adminKey     = flag.String("admin-key", os.Getenv("HW_ADMIN_API_KEY"), "Admin API key")
		prefix       = flag.String("prefix", webhook.DefaultPathPrefix, "Participant folder")
		curriculumF  = flag.String("curriculum", "", "Curriculum YAML the service uses (default built-in)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	catalog, err := curriculum.LoadFile(*curriculumF)
	if err != nil {
		os.Stderr.WriteString("failed to load curriculum: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &replay.Config{
		BaseURL:      *baseURL,
		Participants: *participants,
		MaxWeeks:     *maxWeeks,
		TopN:         *topN,
		Workers:      *workers,
		Timeout:      *timeout,
		Secret:       *secret,
		AdminKey:     *adminKey,
		PathPrefix:   *prefix,
		Verbose:      *verbose,
	}

	if _, err := replay.NewRunner(cfg, replay.NewClient(cfg), catalog).Run(ctx); err != nil {
		os.Stderr.WriteString("replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
