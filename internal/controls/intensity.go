package controls

// Intensity is the visual weight of the exit affordance.
type Intensity int

const (
	// IntensityTextOnly: controls hidden, cursor outside the videos.
	IntensityTextOnly Intensity = iota
	// IntensityMedium: controls hidden, cursor over a video.
	IntensityMedium
	// IntensityOpaque: controls visible.
	IntensityOpaque
)

func (i Intensity) String() string {
	switch i {
	case IntensityOpaque:
		return "opaque"
	case IntensityMedium:
		return "medium"
	default:
		return "text_only"
	}
}

// IntensityFor is the pure mapping from (state, cursor-in-body) to intensity.
func IntensityFor(state State, inBody bool) Intensity {
	switch {
	case state == Enabled:
		return IntensityOpaque
	case inBody:
		return IntensityMedium
	default:
		return IntensityTextOnly
	}
}

// Palette is the CSS colour triple applied to the exit affordance.
type Palette struct {
	Background string `json:"background"`
	Color      string `json:"color"`
	Border     string `json:"border"`
}

// Palette returns the colours used for the intensity.
func (i Intensity) Palette() Palette {
	switch i {
	case IntensityOpaque:
		return Palette{
			Background: "rgba(255, 255, 255, 0.15)",
			Color:      "rgba(255, 255, 255, 0.6)",
			Border:     "rgba(255, 255, 255, 0.15)",
		}
	case IntensityMedium:
		return Palette{
			Background: "rgba(255, 255, 255, 0.1)",
			Color:      "rgba(255, 255, 255, 0.4)",
			Border:     "rgba(255, 255, 255, 0.1)",
		}
	default:
		return Palette{
			Background: "transparent",
			Color:      "rgba(255, 255, 255, 0.2)",
			Border:     "transparent",
		}
	}
}
