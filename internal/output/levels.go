package output

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"meetcap/internal/domain"
)

// LevelMeter renders the system audio level as a bar, with both levels in
// the description.
type LevelMeter struct {
	bar *progressbar.ProgressBar
}

func NewLevelMeter(w io.Writer) *LevelMeter {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription(describeLevels(domain.AudioLevels{})),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: " ",
			BarStart:      "|",
			BarEnd:        "|",
		}),
	)
	return &LevelMeter{bar: bar}
}

func (m *LevelMeter) Update(levels domain.AudioLevels) {
	m.bar.Describe(describeLevels(levels))
	_ = m.bar.Set(percent(levels.System))
}

func (m *LevelMeter) Finish() {
	_ = m.bar.Finish()
}

func describeLevels(levels domain.AudioLevels) string {
	return fmt.Sprintf("sys %3d%%  mic %3d%%", percent(levels.System), percent(levels.Microphone))
}

func percent(level float64) int {
	switch {
	case level <= 0:
		return 0
	case level >= 1:
		return 100
	default:
		return int(level * 100)
	}
}
