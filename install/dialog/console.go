package dialog

import (
	"context"

	"github.com/fatih/color"
)

// ConsoleNotifier is a minimal Notifier for local testing and demos: it
// prints notifications to stdout, colored by reportability, the way the
// teacher's comm package colors CLI output. It never answers a request
// that requires a real decision — hosts embedding this module must supply
// their own Dialog for anything beyond Notify.
type ConsoleNotifier struct{}

var _ Notifier = ConsoleNotifier{}

func (ConsoleNotifier) Notify(ctx context.Context, title, body string, reportable bool) {
	paint := color.New(color.FgYellow)
	if reportable {
		paint = color.New(color.FgRed, color.Bold)
	}
	paint.Fprintf(colorOutput, "%s: %s\n", title, body)
}

var colorOutput = color.Output
