package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/comfort/internal/clock"
	"github.com/nupi-ai/comfort/internal/config"
	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/geometry"
	"github.com/nupi-ai/comfort/internal/i18n"
	"github.com/nupi-ai/comfort/internal/page"
	"github.com/nupi-ai/comfort/internal/session"
	"github.com/nupi-ai/comfort/internal/sites"
)

type simulateOptions struct {
	Viewport        geometry.Size
	Videos          int
	Origin          string
	Locale          string
	RevealDelay     time.Duration
	HideDelay       time.Duration
	TriggerFraction float64
}

// simStep is one row of the simulation transcript.
type simStep struct {
	At       string   `json:"at"`
	Action   string   `json:"action"`
	Active   bool     `json:"active"`
	Controls bool     `json:"controls_enabled"`
	Exit     string   `json:"exit_intensity"`
	Calls    []string `json:"chrome_calls,omitempty"`
}

func newSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "simulate",
		Short:         "Drive an in-memory page through a scripted comfort-mode session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSimulate,
	}
	cmd.Flags().Float64("width", 1280, "Viewport width")
	cmd.Flags().Float64("height", 1024, "Viewport height")
	cmd.Flags().Int("videos", 1, "Number of 1920x1080 videos on the page")
	cmd.Flags().String("origin", "https://www.youtube.com", "Page origin used to pick the site button")
	cmd.Flags().String("locale", "en", "Locale for user-facing text")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	width, _ := cmd.Flags().GetFloat64("width")
	height, _ := cmd.Flags().GetFloat64("height")
	videos, _ := cmd.Flags().GetInt("videos")
	origin, _ := cmd.Flags().GetString("origin")
	locale, _ := cmd.Flags().GetString("locale")

	opts := simulateOptions{
		Viewport: geometry.Size{Width: width, Height: height},
		Videos:   videos,
		Origin:   origin,
		Locale:   locale,
	}
	if err := opts.applySettings(); err != nil {
		return out.Error("Invalid settings", err)
	}

	steps, err := runScenario(opts)
	if err != nil {
		return out.Error("Simulation failed", err)
	}
	if out.jsonMode {
		return out.Print(map[string]any{"steps": steps})
	}

	tw := newTable("AT", "ACTION", "ACTIVE", "CONTROLS", "EXIT", "CHROME")
	for _, s := range steps {
		tw.row(s.At, s.Action, yesNo(s.Active), yesNo(s.Controls), s.Exit, strings.Join(s.Calls, ", "))
	}
	return tw.flush()
}

// applySettings takes the interaction timing from the COMFORT_* environment.
func (o *simulateOptions) applySettings() error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	o.RevealDelay = settings.RevealDelay
	o.HideDelay = settings.HideDelay
	o.TriggerFraction = settings.TriggerFraction
	return nil
}

// runScenario plays a fixed script against the real session engine on a
// simulated clock.
func runScenario(opts simulateOptions) ([]simStep, error) {
	if !opts.Viewport.Valid() {
		return nil, fmt.Errorf("viewport %gx%g is not usable", opts.Viewport.Width, opts.Viewport.Height)
	}
	if opts.Videos < 0 {
		return nil, fmt.Errorf("videos must not be negative")
	}
	if opts.RevealDelay <= 0 {
		opts.RevealDelay = controls.DefaultRevealDelay
	}
	if opts.HideDelay <= 0 {
		opts.HideDelay = controls.DefaultHideDelay
	}
	if opts.TriggerFraction <= 0 {
		opts.TriggerFraction = 0.2
	}

	catalog, err := i18n.LoadEmbedded("en")
	if err != nil {
		return nil, err
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	intrinsic := geometry.Size{Width: 1920, Height: 1080}

	var memVideos []*page.MemoryVideo
	for i := 0; i < opts.Videos; i++ {
		memVideos = append(memVideos, page.NewMemoryVideo(
			fmt.Sprintf("video-%d", i+1),
			intrinsic,
			geometry.Rect{Width: 640, Height: 360},
			page.Style{Position: "relative", Width: "640px", Height: "360px"},
		))
	}
	pg := page.NewMemoryPage(opts.Viewport, memVideos...)
	chrome := &page.RecordingChrome{}

	sessOpts := session.Options{
		PageID:    "simulated",
		Page:      pg,
		Chrome:    chrome,
		Watcher:   chrome,
		Localizer: catalog.Localizer(opts.Locale),
		Config: session.Config{
			Controls:        controls.Config{RevealDelay: opts.RevealDelay, HideDelay: opts.HideDelay},
			TriggerFraction: opts.TriggerFraction,
			Scheduler:       clk,
		},
	}
	if kind, host, err := sites.NewRegistry().Resolve(opts.Origin); err == nil {
		sessOpts.Site = string(kind)
		sessOpts.Host = host
	}
	sess := session.New(sessOpts)
	sess.Start()

	fitted := geometry.Fit(intrinsic, opts.Viewport)
	body := geometry.Point{X: fitted.Left + fitted.Width/2, Y: fitted.Top + fitted.Height/2}
	band := geometry.Point{X: body.X, Y: fitted.Top + fitted.Height*(1-opts.TriggerFraction/2)}
	outside := geometry.Point{X: body.X, Y: fitted.Top / 2}

	var steps []simStep
	seen := 0
	record := func(action string) {
		calls := chrome.Snapshot()
		steps = append(steps, simStep{
			At:       "+" + clk.Now().Sub(start).String(),
			Action:   action,
			Active:   sess.Active(),
			Controls: sess.ControlsEnabled(),
			Exit:     chrome.Intensity.String(),
			Calls:    calls[seen:],
		})
		seen = len(calls)
	}
	setPlayback := func(paused bool, kind session.PlaybackKind) {
		for _, v := range memVideos {
			v.SetPlayback(paused, false)
			sess.Step(session.PlaybackChanged{VideoID: v.ID(), Kind: kind})
		}
	}

	reply := make(chan session.Ack, 1)
	sess.Step(session.Command{Kind: session.CommandToggle, Reply: reply})
	ack := <-reply
	switch {
	case ack.NoVideo:
		record("toggle (no video found)")
		return steps, nil
	default:
		record("toggle")
	}

	sess.Step(session.CursorMove{Point: body})
	record("cursor enters video body")

	sess.Step(session.CursorMove{Point: band})
	record("cursor enters bottom band")

	clk.Advance(opts.RevealDelay)
	record("hover delay elapses")

	if outside.Y > 0 {
		sess.Step(session.CursorMove{Point: outside})
		record("cursor leaves the video")

		clk.Advance(opts.HideDelay)
		record("hide delay elapses")
	}

	setPlayback(true, session.PlaybackPause)
	record("playback paused")

	sess.Step(session.CursorMove{Point: body})
	record("cursor moves while paused")

	setPlayback(false, session.PlaybackPlay)
	record("playback resumed")

	sess.Step(session.KeyDown{Key: "Escape"})
	record("escape")

	for _, v := range memVideos {
		if v.Style() != (page.Style{Position: "relative", Width: "640px", Height: "360px"}) {
			return steps, fmt.Errorf("video %s style was not restored", v.ID())
		}
	}
	return steps, nil
}
