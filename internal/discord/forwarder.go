package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/pkg/retrylimit"
	"github.com/rs/zerolog"
)

const (
	forwardQueue = 64
	maxMessage   = 2000
)

// SendFunc posts content to a channel.
type SendFunc func(ctx context.Context, channelID, content string) error

// SessionSender posts through a discordgo session.
func SessionSender(s *discordgo.Session) SendFunc {
	return func(ctx context.Context, channelID, content string) error {
		_, err := s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
		return classify(err)
	}
}

// restStatus exposes a Discord REST failure's status code to retrylimit.
type restStatus struct {
	err  *discordgo.RESTError
	code int
}

func (e *restStatus) Error() string   { return e.err.Error() }
func (e *restStatus) Unwrap() error   { return e.err }
func (e *restStatus) StatusCode() int { return e.code }

func classify(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	code := rest.Response.StatusCode
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return &restStatus{err: rest, code: code}
	case code >= 400:
		// Missing access or unknown channel will not fix itself.
		return retrylimit.Fatal(&restStatus{err: rest, code: code})
	}
	return err
}

// Forwarder pushes alerts of a minimum severity to an operator channel.
type Forwarder struct {
	send      SendFunc
	channelID string
	min       alert.Type
	lim       *retrylimit.AdaptiveLimiter
	retry     retrylimit.Config
	log       zerolog.Logger
	queue     chan alert.Alert
}

// NewForwarder returns a forwarder for alerts of at least min severity.
func NewForwarder(send SendFunc, channelID string, min alert.Type, log zerolog.Logger) *Forwarder {
	retry := retrylimit.DefaultConfig()
	retry.Log = log
	return &Forwarder{
		send:      send,
		channelID: channelID,
		min:       min,
		lim:       retrylimit.NewAdaptiveLimiter(1, 0.2, 5, 0.5, 0.5),
		retry:     retry,
		log:       log,
		queue:     make(chan alert.Alert, forwardQueue),
	}
}

// Push is an alert.Service subscriber. It never blocks; when the queue is
// full the alert stays only in the alert service.
func (f *Forwarder) Push(a alert.Alert) {
	if severity(a.Type) < severity(f.min) {
		return
	}
	select {
	case f.queue <- a:
	default:
		f.log.Warn().Str("alert", a.ID).Msg("forward queue full, dropping")
	}
}

// Run delivers queued alerts until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-f.queue:
			msg := Format(a)
			err := retrylimit.Do(ctx, f.lim, f.retry, func(ctx context.Context) error {
				return f.send(ctx, f.channelID, msg)
			})
			if err != nil && ctx.Err() == nil {
				f.log.Error().Err(err).Str("alert", a.ID).Msg("failed to forward alert")
			}
		}
	}
}

func severity(t alert.Type) int {
	switch t {
	case alert.TypeInfo:
		return 0
	case alert.TypeWarning:
		return 1
	case alert.TypeError:
		return 2
	case alert.TypeCritical:
		return 3
	}
	return 0
}

var icons = map[alert.Type]string{
	alert.TypeInfo:     "ℹ️",
	alert.TypeWarning:  "⚠️",
	alert.TypeError:    "❌",
	alert.TypeCritical: "🚨",
}

// Format renders an alert as a Discord message.
func Format(a alert.Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **%s** %s\n", icons[a.Type], strings.ToUpper(string(a.Type)), a.Title)
	if a.Message != "" {
		fmt.Fprintf(&sb, "%s\n", a.Message)
	}
	keys := make([]string, 0, len(a.Metadata))
	for k := range a.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "`%s`: %s\n", k, a.Metadata[k])
	}
	fmt.Fprintf(&sb, "-# %s", a.ID)

	out := sb.String()
	if len(out) > maxMessage {
		out = strings.ToValidUTF8(out[:maxMessage-3], "") + "..."
	}
	return out
}
