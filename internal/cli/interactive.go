package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/consts"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9./:=^-]+$`)

// interactiveAnswers mirrors the survey questions below.
type interactiveAnswers struct {
	Symbol    string `survey:"symbol"`
	Market    string `survey:"market"`
	Provider  string `survey:"provider"`
	Interval  string `survey:"interval"`
	Range     string `survey:"range"`
	ImageFile string `survey:"image"`
	Context   string `survey:"context"`
}

func interactiveQuestions(cfg *config.Config) []*survey.Question {
	return []*survey.Question{
		{
			Name: "symbol",
			Prompt: &survey.Input{
				Message: "Symbol to analyze (e.g., AAPL, EURUSD, BTCUSD):",
			},
			Validate: validateSymbol,
		},
		{
			Name: "market",
			Prompt: &survey.Select{
				Message: "Market:",
				Options: []string{consts.MarketStock, consts.MarketForex, consts.MarketCrypto},
				Default: consts.DefaultMarket,
			},
		},
		{
			Name: "provider",
			Prompt: &survey.Select{
				Message: "Market data provider:",
				Options: []string{consts.ProviderAlpha, consts.ProviderFinnhub, consts.ProviderYahoo, consts.ProviderLongport},
				Default: cfg.DefaultProvider,
			},
		},
		{
			Name: "interval",
			Prompt: &survey.Select{
				Message: "Candle interval:",
				Options: consts.Intervals,
				Default: consts.DefaultInterval,
			},
		},
		{
			Name: "range",
			Prompt: &survey.Input{
				Message: "Number of candles:",
				Default: consts.DefaultRange,
			},
			Validate: validateRange,
		},
		{
			Name: "image",
			Prompt: &survey.Input{
				Message: "Chart screenshot file (optional):",
			},
		},
		{
			Name: "context",
			Prompt: &survey.Input{
				Message: "Context for the analysis (optional):",
			},
		},
	}
}

func validateSymbol(val interface{}) error {
	str := strings.ToUpper(strings.TrimSpace(fmt.Sprint(val)))
	if str == "" {
		return errors.New("symbol cannot be empty")
	}
	if len(str) > 20 {
		return errors.New("symbol too long (max 20 characters)")
	}
	if !symbolPattern.MatchString(str) {
		return errors.New("invalid symbol format")
	}
	return nil
}

func validateRange(val interface{}) error {
	n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(val)))
	if err != nil || n <= 0 {
		return errors.New("enter a positive number of candles")
	}
	return nil
}

func (a interactiveAnswers) flags() requestFlags {
	return requestFlags{
		interval:    a.Interval,
		rangeCount:  strings.TrimSpace(a.Range),
		provider:    a.Provider,
		market:      a.Market,
		imageFile:   strings.TrimSpace(a.ImageFile),
		contextHint: strings.TrimSpace(a.Context),
		maxRiskPct:  consts.DefaultMaxRiskPct,
		rrMin:       consts.DefaultRRMin,
		equity:      consts.DefaultAccountEquity,
	}
}

// runInteractiveMode prompts for requests until the user declines to continue.
func runInteractiveMode(ctx context.Context, cfg *config.Config, w io.Writer) error {
	DisplayWelcomeBanner(w)

	session, cleanup, err := newCLISession(ctx, *cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for {
		var answers interactiveAnswers
		if err := survey.Ask(interactiveQuestions(cfg), &answers); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		flags := answers.flags()
		req, err := flags.build(answers.Symbol)
		if err != nil {
			displayError(w, err)
		} else {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("🚀 Running pipeline for %s...", req.Symbol)))
			pc := session.Analyze(ctx, req)
			if err := writeResult(w, pc, false); err != nil {
				return err
			}
		}

		again := false
		if err := survey.AskOne(&survey.Confirm{Message: "Analyze another symbol?", Default: true}, &again); err != nil || !again {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
