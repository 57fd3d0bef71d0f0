package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const notifyTimeout = 8 * time.Second

var kindColors = map[string]int{
	KindBan:          0xFF0000,
	KindBannedAccess: 0xFF0000,
	KindInvalidKey:   0xFF5555,
	KindRateLimit:    0xFFA500,
	KindUnban:        0x00FFFF,
	KindPause:        0xAAAAAA,
	KindResume:       0x00FF00,
	KindDeploy:       0x45A29E,
	KindStatus:       0x66FCF1,
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Discord posts events to a Discord-style webhook URL.
type Discord struct {
	webhook string
	client  *http.Client
}

func NewDiscord(webhook string) *Discord {
	return &Discord{
		webhook: webhook,
		client:  &http.Client{Timeout: notifyTimeout},
	}
}

// Notify fires the webhook call on its own goroutine. The payload is built
// before the goroutine starts, so callers can hand over events computed
// under a lock and release it immediately.
func (d *Discord) Notify(e Event) {
	buf, err := json.Marshal(d.payload(e))
	if err != nil {
		log.Printf("failed to marshal alert %v: %v\n", e.ID, err)
		return
	}

	go func() {
		resp, err := d.client.Post(d.webhook, "application/json", bytes.NewBuffer(buf))
		if err != nil {
			log.Printf("failed to deliver alert %v (kind=%v): %v\n", e.ID, e.Kind, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			log.Printf("delivered alert %v, but webhook reacted with http status: %v (%v)\n", e.ID, resp.StatusCode, http.StatusText(resp.StatusCode))
		}
	}()
}

func (d *Discord) payload(e Event) discordPayload {
	now := time.Now().UTC()

	lines := []string{fmt.Sprintf("**%s**", strings.ReplaceAll(e.Kind, "_", " "))}
	if e.IP != "" {
		lines = append(lines, fmt.Sprintf("IP: `%s`", e.IP))
	}
	if e.Endpoint != "" {
		lines = append(lines, fmt.Sprintf("Endpoint: `%s`", e.Endpoint))
	}
	if e.Detail != "" {
		lines = append(lines, e.Detail)
	}

	color, ok := kindColors[e.Kind]
	if !ok {
		color = 0x00AAFF
	}

	embed := discordEmbed{
		Title:       "SonicBuilder Security Alert",
		Description: strings.Join(lines, "\n"),
		Color:       color,
		Timestamp:   now.Format(time.RFC3339),
	}
	embed.Footer.Text = fmt.Sprintf("SonicBuilder Sentinel • %s", now.Format("2006-01-02 15:04 UTC"))

	return discordPayload{
		Username: "SonicBuilder Sentinel",
		Embeds:   []discordEmbed{embed},
	}
}
