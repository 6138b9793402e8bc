package main

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docutag/watchdog"
	"github.com/docutag/watchdog/classifier"
	"github.com/docutag/watchdog/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Score text with the local lexicon",
		Long:  "Score text given as arguments, or read from stdin when no arguments are given.",
		Run:   runClassify,
	}

	rootCmd.AddCommand(cmd)
}

func runClassify(cmd *cobra.Command, args []string) {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		b, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
		if err != nil {
			exitErr("read stdin", err)
		}
		text = string(b)
	}

	text = classifier.TruncateRunes(strings.TrimSpace(text), watchdog.MaxTextLength)
	if len([]rune(text)) < watchdog.MinTextLength {
		exitErr("classify", errTooShort)
	}

	result := classifier.Score(text)
	result.Route = models.RouteLocal
	result.Language = watchdog.GuessLanguage(text)
	result.ScannedAt = time.Now().UTC()
	printResult(&result, nil)
}

var errTooShort = errors.New("text is too short to classify")
