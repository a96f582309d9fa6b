// Package sites identifies video sites and describes where their in-player
// toggle button lives and how it looks.
package sites

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nupi-ai/comfort/internal/page"
)

// Kind names a supported site.
type Kind string

const (
	KindUnknown    Kind = ""
	KindYouTube    Kind = "youtube"
	KindPrimeVideo Kind = "prime_video"
)

// ErrUnknownSite is returned when an origin matches no built-in or adapter site.
var ErrUnknownSite = errors.New("sites: unknown site")

// Message keys for the button tooltip.
const (
	TooltipInactiveKey = "comfortModeTooltip"
	TooltipActiveKey   = "comfortModeTooltipOn"
)

// ControlsHost locates a site's control bar and styles the toggle button
// injected into it. Button returns the tooltip as a message key.
type ControlsHost interface {
	Kind() Kind
	Selector() string
	Button(active bool) page.ButtonState
}

// DefaultButton is the button presentation shared by the built-in sites.
func DefaultButton(active bool) page.ButtonState {
	if active {
		return page.ButtonState{
			Active:     true,
			Background: "rgba(255, 255, 255, 0.2)",
			Opacity:    1,
			Tooltip:    TooltipActiveKey,
		}
	}
	return page.ButtonState{
		Background: "transparent",
		Opacity:    0.8,
		Tooltip:    TooltipInactiveKey,
	}
}

type builtinHost struct {
	kind     Kind
	selector string
	hosts    []string
}

func (h builtinHost) Kind() Kind                          { return h.kind }
func (h builtinHost) Selector() string                    { return h.selector }
func (h builtinHost) Button(active bool) page.ButtonState { return DefaultButton(active) }

var builtins = []builtinHost{
	{
		kind:     KindYouTube,
		selector: ".ytp-right-controls",
		hosts:    []string{"www.youtube.com", "youtube.com"},
	},
	{
		kind:     KindPrimeVideo,
		selector: "div.atvwebplayersdk-hideabletopbuttons-container",
		hosts:    []string{"www.amazon.com", "amazon.com", "www.primevideo.com", "primevideo.com"},
	},
}

// Hostname extracts the lower-cased host from an origin or page URL. Bare
// host names are accepted as well.
func Hostname(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", fmt.Errorf("sites: empty origin")
	}
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("sites: parse origin %q: %w", origin, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("sites: origin %q has no host", origin)
	}
	return host, nil
}

// Identify maps an origin to a built-in site kind.
func Identify(origin string) (Kind, error) {
	host, err := Hostname(origin)
	if err != nil {
		return KindUnknown, err
	}
	for _, b := range builtins {
		for _, h := range b.hosts {
			if h == host {
				return b.kind, nil
			}
		}
	}
	return KindUnknown, fmt.Errorf("%w: %s", ErrUnknownSite, host)
}
