// lexcache-cli is an interactive console for a running lexcached.
//
// With a terminal attached it runs a REPL with completion; otherwise each
// command-line argument set (or stdin line) is executed once and the exit
// code reflects success.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/lexcache/lexcache/internal/client"
)

var commands = []prompt.Suggest{
	{Text: "ping", Description: "Check server liveness"},
	{Text: "check", Description: "check <key> - look up cached audio"},
	{Text: "store", Description: "store <key> <data> - cache audio data"},
	{Text: "evict", Description: "evict <key> - remove one cache entry"},
	{Text: "clear", Description: "Remove all cached audio"},
	{Text: "stats", Description: "Show cache occupancy"},
	{Text: "track", Description: "track <uuid> <level> <correct|wrong> - record an answer"},
	{Text: "score", Description: "score <uuid> - show per-level counters"},
	{Text: "clear-score", Description: "clear-score <uuid> - delete per-level counters"},
	{Text: "answer", Description: "answer <uuid> <question> <correct|wrong> [ms] - detailed record"},
	{Text: "question", Description: "question <id> - show a question's aggregate"},
	{Text: "performance", Description: "performance <uuid> - per-question history"},
	{Text: "miss", Description: "miss <uuid> <word>... - record missed vocabulary"},
	{Text: "misses", Description: "misses <uuid> - show miss counters"},
	{Text: "clear-misses", Description: "clear-misses <uuid> - delete miss counters"},
	{Text: "help", Description: "List commands"},
	{Text: "exit", Description: "Quit"},
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

type console struct {
	client  *client.Client
	timeout time.Duration
}

func main() {
	addr := flag.String("addr", "", "lexcached address (default 127.0.0.1:8629)")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	c := client.New(&client.Config{Addr: *addr, RequestTimeout: *timeout})
	if err := c.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	cons := &console{client: c, timeout: *timeout}

	// One-shot mode: arguments form a single command.
	if args := flag.Args(); len(args) > 0 {
		if err := cons.run(args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Piped input: execute each line.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		scanner := bufio.NewScanner(os.Stdin)
		failed := false
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) == 0 {
				continue
			}
			if err := cons.run(fields); err != nil {
				fmt.Fprintln(os.Stderr, err)
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	fmt.Println("lexcache console - type 'help' for commands, 'exit' to quit")
	p := prompt.New(
		cons.execute,
		completer,
		prompt.OptionPrefix("lexcache> "),
		prompt.OptionTitle("lexcache-cli"),
	)
	p.Run()
}

func (c *console) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if fields[0] == "exit" || fields[0] == "quit" {
		c.client.Close()
		os.Exit(0)
	}
	if err := c.run(fields); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func (c *console) run(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help":
		for _, s := range commands {
			fmt.Printf("  %-13s %s\n", s.Text, s.Description)
		}
		return nil

	case "ping":
		pong, err := c.client.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pong (server time %s)\n",
			time.UnixMilli(pong.Timestamp).Format(time.RFC3339))
		return nil

	case "check":
		if len(rest) != 1 {
			return fmt.Errorf("usage: check <key>")
		}
		result, err := c.client.CheckCache(ctx, rest[0])
		if err != nil {
			return err
		}
		if !result.Exists {
			fmt.Println("miss")
			return nil
		}
		fmt.Printf("hit (%d bytes)\n", len(*result.AudioData))
		return nil

	case "store":
		if len(rest) != 2 {
			return fmt.Errorf("usage: store <key> <data>")
		}
		result, err := c.client.StoreCache(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Printf("stored=%t key=%s\n", result.Success, result.CacheKey)
		return nil

	case "evict":
		if len(rest) != 1 {
			return fmt.Errorf("usage: evict <key>")
		}
		result, err := c.client.EvictCache(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("evicted=%t\n", result.Evicted)
		return nil

	case "clear":
		result, err := c.client.ClearCache(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d entries\n", result.Cleared)
		return nil

	case "stats":
		result, err := c.client.GetStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("entries=%d size=%sMB\n", result.Count, result.SizeMB)
		for _, key := range result.Keys {
			fmt.Printf("  %s\n", key)
		}
		return nil

	case "track":
		if len(rest) != 3 {
			return fmt.Errorf("usage: track <uuid> <level> <correct|wrong>")
		}
		correct, err := parseCorrect(rest[2])
		if err != nil {
			return err
		}
		result, err := c.client.TrackQuestionResult(ctx, rest[0], rest[1], correct)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d/%d correct (%d%%)\n",
			result.Difficulty, result.CorrectAnswers, result.TotalAttempts, result.SuccessRate)
		return nil

	case "score":
		if len(rest) != 1 {
			return fmt.Errorf("usage: score <uuid>")
		}
		result, err := c.client.GetScoringStats(ctx, rest[0])
		if err != nil {
			return err
		}
		for _, level := range []string{"A1", "A2", "B1", "B2", "C1", "C2"} {
			s := result.Stats[level]
			fmt.Printf("  %s: %d/%d correct (%d%%)\n", level, s.Correct, s.Attempts, s.SuccessRate)
		}
		return nil

	case "clear-score":
		if len(rest) != 1 {
			return fmt.Errorf("usage: clear-score <uuid>")
		}
		result, err := c.client.ClearScoringStats(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d counters\n", result.DeletedCount)
		return nil

	case "answer":
		if len(rest) < 3 || len(rest) > 4 {
			return fmt.Errorf("usage: answer <uuid> <question> <correct|wrong> [ms]")
		}
		correct, err := parseCorrect(rest[2])
		if err != nil {
			return err
		}
		resp := client.DetailedResponse{UUID: rest[0], QuestionID: rest[1], Correct: correct}
		if len(rest) == 4 {
			ms, err := strconv.ParseFloat(rest[3], 64)
			if err != nil {
				return fmt.Errorf("bad response time %q", rest[3])
			}
			resp.ResponseTimeMs = &ms
		}
		result, err := c.client.TrackDetailedResponse(ctx, resp)
		if err != nil {
			return err
		}
		fmt.Printf("recorded=%t attempts=%d rate=%d%%\n",
			result.Recorded, result.TotalAttempts, result.SuccessRate)
		return nil

	case "question":
		if len(rest) != 1 {
			return fmt.Errorf("usage: question <id>")
		}
		result, err := c.client.GetQuestionAnalytics(ctx, rest[0])
		if err != nil {
			return err
		}
		if result.Stats == nil {
			fmt.Println("no data")
			return nil
		}
		s := result.Stats
		fmt.Printf("attempts=%d correct=%d rate=%d%%", s.TotalAttempts, s.CorrectAttempts, s.SuccessRate)
		if s.AvgResponseTime != nil {
			fmt.Printf(" avg=%dms", *s.AvgResponseTime)
		}
		fmt.Println()
		return nil

	case "performance":
		if len(rest) != 1 {
			return fmt.Errorf("usage: performance <uuid>")
		}
		result, err := c.client.GetUserQuestionPerformance(ctx, rest[0])
		if err != nil {
			return err
		}
		if len(result.QuestionPerformances) == 0 {
			fmt.Println("no data")
			return nil
		}
		for _, p := range result.QuestionPerformances {
			fmt.Printf("  %s: %d/%d correct (%d%%) last %s\n",
				p.QuestionID, p.Correct, p.Attempts, p.SuccessRate,
				time.UnixMilli(p.LastAttempted).Format(time.RFC3339))
		}
		return nil

	case "miss":
		if len(rest) < 2 {
			return fmt.Errorf("usage: miss <uuid> <word>...")
		}
		result, err := c.client.TrackVocabMiss(ctx, rest[0], rest[1:])
		if err != nil {
			return err
		}
		fmt.Printf("tracked %d words\n", result.Tracked)
		return nil

	case "misses":
		if len(rest) != 1 {
			return fmt.Errorf("usage: misses <uuid>")
		}
		result, err := c.client.GetVocabMissStats(ctx, rest[0])
		if err != nil {
			return err
		}
		if len(result.Stats) == 0 {
			fmt.Println("no data")
			return nil
		}
		for word, count := range result.Stats {
			fmt.Printf("  %s: %d\n", word, count)
		}
		return nil

	case "clear-misses":
		if len(rest) != 1 {
			return fmt.Errorf("usage: clear-misses <uuid>")
		}
		result, err := c.client.ClearVocabMiss(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d counters\n", result.Deleted)
		return nil

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func parseCorrect(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "correct", "true", "yes", "y":
		return true, nil
	case "wrong", "false", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("expected correct|wrong, got %q", s)
	}
}
