package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/config"
	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/sources/youtube"
)

// prompter reads one answer per question
type prompter interface {
	Prompt(question string) (string, error)
	Close() error
}

// linePrompter is used when stdin is not a terminal
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *linePrompter) Prompt(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *linePrompter) Close() error { return nil }

// termPrompter edits answers in place and keeps a history of them
type termPrompter struct {
	*liner.State
}

func (p termPrompter) Prompt(question string) (string, error) {
	answer, err := p.State.Prompt(question)
	if err != nil {
		return "", err
	}
	p.AppendHistory(answer)
	return answer, nil
}

func newPrompter(stdin io.Reader, stdout io.Writer) prompter {
	if stdin == os.Stdin && stdout == os.Stdout && liner.TerminalSupported() {
		st := liner.NewLiner()
		st.SetCtrlCAborts(true)
		return termPrompter{st}
	}
	return &linePrompter{in: bufio.NewReader(stdin), out: stdout}
}

// ask repeats question until the answer is one of choices
func ask(p prompter, stderr io.Writer, question string, choices ...string) (string, error) {
	for {
		answer, err := p.Prompt(question)
		if err != nil {
			return "", err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		for _, c := range choices {
			if answer == c {
				return answer, nil
			}
		}
		fmt.Fprintf(stderr, "\n%q was an unexpected response\nPlease choose between [%s]\n\n", answer, strings.Join(choices, ", "))
	}
}

// askFilter repeats until the pattern compiles
func askFilter(p prompter, stderr io.Writer) (string, error) {
	for {
		pattern, err := p.Prompt("Input Filter (regex, empty shows everything) >>> ")
		if err != nil {
			return "", err
		}
		if _, err := filter.New(pattern); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			continue
		}
		return pattern, nil
	}
}

// interactive asks for platform, search type, target and filter, then runs
// the matching command with the default configuration file.
func interactive(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, appOpts ...app.Option) int {
	p := newPrompter(stdin, stdout)
	defer p.Close()

	o := &options{configPath: config.DefaultPath, pages: 1}
	err := func() error {
		platform, err := ask(p, stderr, "What platform would you like to pull from (Twitch, AfreecaTV, YouTube)? >>> ",
			"twitch", "afreecatv", "youtube")
		if err != nil {
			return err
		}

		var target app.Target
		var terms string
		switch platform {
		case "twitch":
			kind, err := ask(p, stderr, "Would you like to search through entire Channel, single VOD, or clips? >>> ",
				"channel", "vod", "clips")
			if err != nil {
				return err
			}
			question := "Input Channel Name >>> "
			if kind == app.KindVOD {
				question = "Input VOD ID >>> "
			}
			target = app.Target{Platform: "twitch", Kind: kind}
			if target.Value, err = p.Prompt(question); err != nil {
				return err
			}
		case "afreecatv":
			kind, err := ask(p, stderr, "Would you like to search through entire Blog or single Video? >>> ",
				"blog", "video")
			if err != nil {
				return err
			}
			target = app.Target{Platform: "afreecatv", Kind: app.KindVOD}
			question := "Input VOD Link >>> "
			if kind == "blog" {
				target.Kind = app.KindChannel
				question = "Input Blog Name >>> "
			}
			if target.Value, err = p.Prompt(question); err != nil {
				return err
			}
		case "youtube":
			target = app.Target{Platform: "youtube"}
			if target.Value, err = p.Prompt("Input Channel Name >>> "); err != nil {
				return err
			}
			if terms, err = p.Prompt("Please enter a query you would like to search for >>> "); err != nil {
				return err
			}
		}

		if target.Platform != "youtube" {
			if o.filter, err = askFilter(p, stderr); err != nil {
				return err
			}
		}

		e, err := newEnv(ctx, o, false, stdin, stdout, stderr, appOpts...)
		if err != nil {
			return err
		}
		defer e.close()

		switch {
		case target.Platform == "youtube":
			s, err := youtube.NewSearcher(ctx, e.cfg.YouTube.APIKey, o.pages)
			if err != nil {
				return err
			}
			return e.searchYouTube(ctx, s, target.Value, terms)
		case target.Kind == "clips":
			return execClips(ctx, e, []string{strings.TrimSpace(target.Value)})
		default:
			return e.runTarget(ctx, target)
		}
	}()

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
		fmt.Fprintln(stderr)
		return exitUsage
	default:
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
}
