package traffic

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/flowdeck/flowdeck/internal/flowgraph"
)

// wirePayload mirrors the proxy controller's /connections body as
// published on the feed channel.
type wirePayload struct {
	DownloadTotal int64      `json:"downloadTotal"`
	UploadTotal   int64      `json:"uploadTotal"`
	Connections   []wireConn `json:"connections"`
}

type wireConn struct {
	ID       string `json:"id"`
	Metadata struct {
		Network  string `json:"network"`
		SourceIP string `json:"sourceIP"`
		Host     string `json:"host"`
	} `json:"metadata"`
	Upload      int64    `json:"upload"`
	Download    int64    `json:"download"`
	Start       string   `json:"start"`
	Chains      []string `json:"chains"`
	Rule        string   `json:"rule"`
	RulePayload string   `json:"rulePayload"`
}

// Feed subscribes to the proxy's connection snapshots on a Redis
// pub/sub channel and pushes them into the tracker. The proxy owns the
// publish cadence; flowdeck never polls.
type Feed struct {
	client  *redis.Client
	channel string
	tracker *Tracker
	logger  *slog.Logger
}

// NewFeed connects a feed to the given Redis address and channel.
func NewFeed(addr, channel string, tracker *Tracker, logger *slog.Logger) *Feed {
	return &Feed{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		tracker: tracker,
		logger:  logger,
	}
}

// Run consumes snapshots until the context is cancelled. Malformed
// payloads are logged and skipped; the subscription stays up.
func (f *Feed) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer func() { _ = sub.Close() }()

	// Fail fast if the broker is unreachable.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	f.logger.Info("feed subscribed", "channel", f.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.consume(msg.Payload)
		}
	}
}

// Close releases the Redis client.
func (f *Feed) Close() error {
	return f.client.Close()
}

func (f *Feed) consume(payload string) {
	var p wirePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		f.logger.Warn("dropping malformed snapshot", "error", err)
		return
	}

	conns := make([]flowgraph.Connection, 0, len(p.Connections))
	for _, w := range p.Connections {
		conns = append(conns, flowgraph.Connection{
			ID:          w.ID,
			SourceIP:    w.Metadata.SourceIP,
			Host:        w.Metadata.Host,
			Network:     w.Metadata.Network,
			Rule:        w.Rule,
			RulePayload: w.RulePayload,
			Chains:      w.Chains,
			Upload:      w.Upload,
			Download:    w.Download,
			Start:       w.Start,
		})
	}

	f.tracker.Update(conns, p.UploadTotal, p.DownloadTotal)
}
