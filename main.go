package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"locatorbot/internal/announce"
	"locatorbot/internal/discord"
	"locatorbot/internal/events"
	"locatorbot/internal/llm"
	"locatorbot/internal/maps"
)

const (
	pollSchedule = "@every 2m"
	cycleTimeout = time.Minute
	httpTimeout  = 15 * time.Second
)

type Config struct {
	MapsAPIKey   string
	DiscordToken string
	OpenAIToken  string
}

func loadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading .env file: %v", err)
	}

	config := &Config{
		MapsAPIKey:   os.Getenv("GOOGLE_MAPS_API_KEY"),
		DiscordToken: os.Getenv("DISCORD_BOT_TOKEN"),
		OpenAIToken:  os.Getenv("OPENAI_API_KEY"),
	}

	required := map[string]string{
		"GOOGLE_MAPS_API_KEY": config.MapsAPIKey,
		"DISCORD_BOT_TOKEN":   config.DiscordToken,
		"OPENAI_API_KEY":      config.OpenAIToken,
	}

	for k, v := range required {
		if v == "" {
			return nil, fmt.Errorf("%s is required", k)
		}
	}

	return config, nil
}

// ChannelSettings binds one tracked category to a channel and search radius.
type ChannelSettings struct {
	Name     string `json:"name"`
	Distance int    `json:"distance"`
}

// Settings is the static per-deployment configuration, read once at startup.
type Settings struct {
	Origin          string                     `json:"origin"`
	GuildID         string                     `json:"guild_id"`
	HistoryMaxTurns int                        `json:"history_max_turns"`
	Channels        map[string]ChannelSettings `json:"channels"`
}

func loadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading settings file: %v", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("error parsing settings file: %v", err)
	}

	if settings.Origin == "" {
		return nil, fmt.Errorf("settings: origin is required")
	}
	if settings.GuildID == "" {
		return nil, fmt.Errorf("settings: guild_id is required")
	}
	if len(settings.Channels) == 0 {
		return nil, fmt.Errorf("settings: at least one channel is required")
	}
	for tag, ch := range settings.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("settings: channel name is required for %s", tag)
		}
		if ch.Distance <= 0 {
			return nil, fmt.Errorf("settings: distance must be positive for %s", tag)
		}
	}

	return &settings, nil
}

func main() {
	settingsPath := flag.String("settings", "settings.json", "path to settings json")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	config, err := loadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	settings, err := loadSettings(*settingsPath)
	if err != nil {
		logger.Fatal("Failed to load settings", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: httpTimeout}
	mapsClient := maps.NewClient(config.MapsAPIKey, httpClient, logger)

	// The origin is resolved exactly once; without valid coordinates the
	// poll loop cannot compute travel times, so failure here is fatal.
	lat, lng, err := mapsClient.Geocode(ctx, settings.Origin)
	if err != nil {
		logger.Fatal("Failed to geocode origin address",
			zap.String("origin", settings.Origin),
			zap.Error(err))
	}
	logger.Info("Resolved origin coordinates",
		zap.Float64("latitude", lat),
		zap.Float64("longitude", lng))

	history := llm.NewHistory(settings.HistoryMaxTurns)
	responder := llm.NewResponder(openai.NewClient(config.OpenAIToken), history, logger)

	session, err := discord.New(config.DiscordToken, settings.GuildID, logger)
	if err != nil {
		logger.Fatal("Failed to create Discord session", zap.Error(err))
	}
	session.HandleMessages(responder)

	if err := session.Open(); err != nil {
		logger.Fatal("Failed to connect to Discord", zap.Error(err))
	}
	defer session.Close()

	// Every tracked channel must exist before the scheduler starts; a
	// missing channel is a configuration error, not a per-cycle condition.
	tags := make([]string, 0, len(settings.Channels))
	for tag := range settings.Channels {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var categories []announce.Category
	for _, tag := range tags {
		ch := settings.Channels[tag]
		channelID, err := session.ChannelIDByName(ch.Name)
		if err != nil {
			logger.Fatal("Failed to resolve tracked channel",
				zap.String("category", tag),
				zap.String("channel", ch.Name),
				zap.Error(err))
		}
		categories = append(categories, announce.Category{
			Tag:         tag,
			ChannelName: ch.Name,
			ChannelID:   channelID,
			Distance:    ch.Distance,
		})
		logger.Info("Tracking category",
			zap.String("category", tag),
			zap.String("channel", ch.Name),
			zap.Int("distance", ch.Distance))
	}

	poller := announce.NewPoller(session, events.NewClient(httpClient), mapsClient, lat, lng, logger)

	scheduler := cron.New()
	for _, cat := range categories {
		cat := cat
		_, err := scheduler.AddFunc(pollSchedule, func() {
			cycleCtx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
			defer cancel()
			if err := poller.RunCycle(cycleCtx, cat); err != nil {
				logger.Error("Poll cycle failed",
					zap.String("category", cat.Tag),
					zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("Failed to schedule poll job",
				zap.String("category", cat.Tag),
				zap.Error(err))
		}
	}
	scheduler.Start()

	logger.Info("Locator bot started",
		zap.Int("categories", len(categories)),
		zap.String("schedule", pollSchedule))

	<-ctx.Done()
	logger.Info("Shutting down")

	// Let in-flight poll cycles finish before closing the session.
	<-scheduler.Stop().Done()
}
