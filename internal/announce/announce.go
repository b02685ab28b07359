package announce

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"locatorbot/internal/events"
)

// fetchFailedNotice is posted to the category's channel when the event
// locator cannot be reached.
const fetchFailedNotice = "Failed to fetch events."

// callToAction is posted into every newly created discussion thread.
const callToAction = "@everyone Qui est intéressé ?"

// Discussion threads auto-archive after an hour of inactivity.
const threadAutoArchiveMinutes = 60

// Category is one tracked event kind, bound to a single channel. Channel
// existence is validated at startup, so ChannelID is always resolvable here.
type Category struct {
	Tag         string
	ChannelName string
	ChannelID   string
	Distance    int
}

// Chat is the narrow slice of the chat platform the poller consumes. The
// platform's live thread list is the sole source of dedupe truth; nothing is
// cached between cycles.
type Chat interface {
	SendMessage(channelID, content string) (messageID string, err error)
	StartThread(channelID, messageID, name string, autoArchiveMinutes int) (threadID string, err error)
	ThreadNames(channelID string) ([]string, error)
}

// EventSource fetches raw activities near a coordinate.
type EventSource interface {
	Search(ctx context.Context, lat, lng float64, distance int) ([]events.Activity, error)
}

// TravelEstimator renders a travel duration or a descriptive failure string.
type TravelEstimator interface {
	TravelTime(ctx context.Context, origin, mapLink string) string
}

// Poller runs the fetch, filter, dedupe and announce cycle for tracked
// categories. Cycles for different categories share no mutable state and may
// run concurrently.
type Poller struct {
	chat   Chat
	source EventSource
	travel TravelEstimator
	lat    float64
	lng    float64
	origin string
	logger *zap.Logger
}

func NewPoller(chat Chat, source EventSource, travel TravelEstimator, lat, lng float64, logger *zap.Logger) *Poller {
	return &Poller{
		chat:   chat,
		source: source,
		travel: travel,
		lat:    lat,
		lng:    lng,
		origin: fmt.Sprintf("%.6f,%.6f", lat, lng),
		logger: logger,
	}
}

// RunCycle executes one poll cycle for a category. Running the same cycle
// twice against unchanged remote activities and an unchanged thread list
// creates zero new threads the second time: identities are deterministic
// from activity content.
func (p *Poller) RunCycle(ctx context.Context, cat Category) error {
	activities, err := p.source.Search(ctx, p.lat, p.lng, cat.Distance)
	if err != nil {
		p.logger.Error("Failed to fetch activities",
			zap.String("category", cat.Tag),
			zap.Error(err))
		if _, sendErr := p.chat.SendMessage(cat.ChannelID, fetchFailedNotice); sendErr != nil {
			p.logger.Error("Failed to post fetch failure notice",
				zap.String("channel", cat.ChannelName),
				zap.Error(sendErr))
		}
		return fmt.Errorf("error fetching activities for %s: %w", cat.Tag, err)
	}

	matched := events.Filter(activities, cat.Tag)
	events.SortByStart(matched)

	existing, err := p.chat.ThreadNames(cat.ChannelID)
	if err != nil {
		return fmt.Errorf("error listing threads for channel %s: %w", cat.ChannelName, err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		seen[name] = struct{}{}
	}

	created := 0
	for _, activity := range matched {
		identity := events.Identity(activity)
		if _, ok := seen[identity]; ok {
			continue
		}

		travelTime := p.travel.TravelTime(ctx, p.origin, activity.Address.MapLink)
		body := renderAnnouncement(activity, travelTime)

		messageID, err := p.chat.SendMessage(cat.ChannelID, body)
		if err != nil {
			p.logger.Error("Failed to send announcement",
				zap.String("channel", cat.ChannelName),
				zap.String("identity", identity),
				zap.Error(err))
			continue
		}

		threadID, err := p.chat.StartThread(cat.ChannelID, messageID, identity, threadAutoArchiveMinutes)
		if err != nil {
			p.logger.Error("Failed to create discussion thread",
				zap.String("channel", cat.ChannelName),
				zap.String("identity", identity),
				zap.Error(err))
			continue
		}

		if _, err := p.chat.SendMessage(threadID, callToAction); err != nil {
			p.logger.Warn("Failed to post call to action into thread",
				zap.String("thread", identity),
				zap.Error(err))
		}

		// Guard against the same identity appearing twice in one fetch.
		seen[identity] = struct{}{}
		created++
	}

	p.logger.Info("Poll cycle complete",
		zap.String("category", cat.Tag),
		zap.Int("fetched", len(activities)),
		zap.Int("matched", len(matched)),
		zap.Int("announced", created))
	return nil
}

func renderAnnouncement(a events.Activity, travelTime string) string {
	kind := "League Challenge"
	if a.HasTag("league_cup") {
		kind = "League Cup"
	}

	var sb strings.Builder
	sb.WriteString("***Nouvel Evenement Detecté!***\n")
	sb.WriteString(fmt.Sprintf("**Type:** %s\n", kind))
	sb.WriteString(fmt.Sprintf("**Boutique:** %s\n", a.Address.Name))
	sb.WriteString(fmt.Sprintf("**Date et Heure:** %s\n", events.FormatStart(a.StartDatetime)))
	sb.WriteString(fmt.Sprintf("**Temps de trajet:** %s\n", travelTime))
	sb.WriteString(fmt.Sprintf("**Ville:** %s\n", a.Address.City))
	sb.WriteString(fmt.Sprintf("**Addresse:** %s\n", a.Address.Address))
	sb.WriteString(fmt.Sprintf("**Lien Pokemon.com:** %s\n", a.PokemonURL))
	sb.WriteString(fmt.Sprintf("**Lien Google Maps:** %s", a.Address.MapLink))
	return sb.String()
}
