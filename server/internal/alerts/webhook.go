package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	e.mu.Lock()
	webhooks := e.webhooks
	e.mu.Unlock()

	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		body, err := payload(wh.Type, a)
		if err != nil {
			slog.Warn("alerts: skipping webhook", "type", wh.Type, "err", err)
			continue
		}
		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type,
			"rule", a.RuleName,
			"state", a.State,
		)
	}
}

// payload encodes a in the format a webhook of type kind expects.
func payload(kind string, a *Alert) ([]byte, error) {
	switch kind {
	case "slack":
		return json.Marshal(slackMessage(a))
	case "teams":
		return json.Marshal(teamsCard(a))
	case "pagerduty", "http":
		return json.Marshal(map[string]any{"alert": a})
	}
	return nil, fmt.Errorf("unknown webhook type %q", kind)
}

// fact is one labelled value shown in a chat notification.
type fact struct {
	Name  string
	Value string
}

// facts lists what a reader needs to act on a: the offending value and the
// configuration the record describes.
func facts(a *Alert) []fact {
	out := []fact{
		{"Scenario", a.Scenario},
		{"Condition", a.Condition},
		{"Value", strconv.FormatFloat(a.Value, 'g', 6, 64)},
	}
	r := a.Record
	if r.Availability != nil {
		out = append(out, fact{"Availability", fmt.Sprintf("%.6f", *r.Availability)})
	}
	if r.Feasible != nil {
		best := "none feasible"
		if *r.Feasible {
			best = fmt.Sprintf("n=%d k=%d", r.BestN, r.BestK)
		}
		out = append(out, fact{"Best configuration", best})
	}
	if r.MinCost != nil {
		out = append(out, fact{"Min cost", fmt.Sprintf("%.2f", *r.MinCost)})
	}
	return append(out, fact{"Record", a.RecordID})
}

func title(a *Alert) string {
	return fmt.Sprintf("%s %s on %s (%s)", severityLabel(a.Severity), a.RuleName, a.Scenario, a.State)
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color    string       `json:"color"`
	Fallback string       `json:"fallback"`
	Fields   []slackField `json:"fields"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackMessage(a *Alert) slackPayload {
	ff := facts(a)
	fields := make([]slackField, len(ff))
	for i, f := range ff {
		fields[i] = slackField{Title: f.Name, Value: f.Value, Short: f.Name != "Condition"}
	}
	return slackPayload{
		Text: "*" + title(a) + "*",
		Attachments: []slackAttachment{{
			Color:    "#" + severityColor(a.Severity),
			Fallback: a.Message,
			Fields:   fields,
		}},
	}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts"`
}

type teamsPayload struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections"`
}

func teamsCard(a *Alert) teamsPayload {
	ff := facts(a)
	tf := make([]teamsFact, len(ff))
	for i, f := range ff {
		tf[i] = teamsFact(f)
	}
	return teamsPayload{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColor(a.Severity),
		Summary:    a.RuleName,
		Title:      title(a),
		Text:       a.Message,
		Sections:   []teamsSection{{ActivityTitle: a.Record.Kind, Facts: tf}},
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
