// Package shell is the interactive surface: it asks which archive to walk
// and which mode to run, then hands off to the pipeline. It owns no crawl
// logic of its own.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/avgs/ljmigrate/internal/config"
)

// RunAllFunc starts a full or limited archive walk from baseURL.
// limit 0 means all posts.
type RunAllFunc func(ctx context.Context, baseURL string, limit int) error

// RunOneFunc exports the single post at postURL.
type RunOneFunc func(ctx context.Context, postURL string) error

// Shell is the interactive menu loop.
type Shell struct {
	cfg    *config.Config
	logger *slog.Logger
	reader *bufio.Reader
	runAll RunAllFunc
	runOne RunOneFunc
}

// New creates a Shell reading user input from in.
func New(cfg *config.Config, logger *slog.Logger, in io.Reader, runAll RunAllFunc, runOne RunOneFunc) *Shell {
	return &Shell{
		cfg:    cfg,
		logger: logger,
		reader: bufio.NewReader(in),
		runAll: runAll,
		runOne: runOne,
	}
}

// Start begins the interactive loop. It returns when the user exits or the
// input stream ends.
func (s *Shell) Start(ctx context.Context) {
	baseURL := s.cfg.Archive.BaseURL
	for baseURL == "" {
		line, err := s.prompt("Enter the base URL of the journal: ")
		if err != nil {
			return
		}
		baseURL = line
		if baseURL == "" {
			fmt.Println("Invalid input. Please enter a valid URL.")
		}
	}

	for {
		fmt.Println("Select an option:")
		fmt.Println("1. Save all posts")
		fmt.Println("2. Save a specific number of posts")
		fmt.Println("3. Save one post")
		fmt.Println("4. Change journal URL")
		fmt.Println("5. Exit")

		choice, err := s.prompt("Enter your choice (1/2/3/4/5): ")
		if err != nil {
			return
		}

		switch choice {
		case "1":
			s.report(s.runAll(ctx, baseURL, 0))
		case "2":
			limit, err := s.promptPositiveInt("Enter the number of posts to save: ")
			if err != nil {
				return
			}
			s.report(s.runAll(ctx, baseURL, limit))
		case "3":
			postURL, err := s.prompt("Enter the URL of the post: ")
			if err != nil {
				return
			}
			if postURL == "" {
				fmt.Println("Invalid input. Please enter a valid URL.")
				continue
			}
			s.report(s.runOne(ctx, postURL))
		case "4":
			u, err := s.prompt("Enter the new base URL of the journal: ")
			if err != nil {
				return
			}
			if u != "" {
				baseURL = u
			} else {
				fmt.Println("Invalid input. Please enter a valid URL.")
			}
			continue
		case "5":
			return
		default:
			fmt.Println("Invalid option. Please try again.")
			continue
		}

		again, err := s.promptYesNo("Do you want to continue? (y/n): ")
		if err != nil || !again {
			return
		}
	}
}

func (s *Shell) report(err error) {
	if err != nil {
		s.logger.Error("run stopped", "error", err)
		fmt.Printf("Run stopped: %v\n", err)
		return
	}
	fmt.Println("Done.")
}

// prompt reads one line. A read error (including EOF on a closed input)
// surfaces to the caller so the menu loops terminate instead of spinning.
// A final unterminated line is still accepted.
func (s *Shell) prompt(msg string) (string, error) {
	fmt.Print(msg)
	line, err := s.reader.ReadString('\n')
	trimmed := strings.TrimSpace(line)
	if err != nil && trimmed == "" {
		return "", err
	}
	return trimmed, nil
}

func (s *Shell) promptPositiveInt(msg string) (int, error) {
	for {
		line, err := s.prompt(msg)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n > 0 {
			return n, nil
		}
		fmt.Println("Invalid input. Please enter a positive integer.")
	}
}

func (s *Shell) promptYesNo(msg string) (bool, error) {
	for {
		line, err := s.prompt(msg)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y":
			return true, nil
		case "n":
			return false, nil
		default:
			fmt.Println("Invalid input. Please enter y or n.")
		}
	}
}
