package notify

import (
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"
)

const (
	notificationTitle = "New Gratitude Submission"
	previewLength     = 100
	sendTimeout       = 10 * time.Second
)

// Notifier announces new submissions to an operator channel (typically an
// ntfy topic) via a shoutrrr service URL. Sends are best effort: failures
// are logged and never surfaced to the submitter.
type Notifier struct {
	sender *router.ServiceRouter
	logger *zap.Logger
}

// New builds a notifier from a shoutrrr URL such as ntfy://ntfy.sh/topic.
// An empty URL returns a disabled notifier that drops every announcement.
func New(serviceURL string, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if serviceURL == "" {
		return &Notifier{logger: logger}, nil
	}

	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return nil, err
	}
	sender.Timeout = sendTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &Notifier{sender: sender, logger: logger}, nil
}

// Enabled reports whether a channel is configured.
func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

// Announce sends a preview of the submitted text. Intended to be called
// from a goroutine; the caller never sees a failure.
func (n *Notifier) Announce(text string) {
	if n.sender == nil {
		return
	}

	params := stypes.Params{}
	params.SetTitle(notificationTitle)

	errs := n.sender.Send(preview(text), &params)
	for _, err := range errs {
		if err != nil {
			n.logger.Warn("submission notification failed", zap.Error(err))
			return
		}
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return "New submission received:\n\n\"" + text + "\""
	}
	return "New submission received:\n\n\"" + string(runes[:previewLength]) + "...\""
}
