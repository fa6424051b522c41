// Package notify sends the end-of-run email notification through the
// hosted email task. It is a best-effort side channel: failures are logged
// and never reach the run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/consumer-puls/insights-scraper/internal/model"
)

// Config holds the email task endpoint. Enabled is only set when running
// in the managed environment; local runs never notify.
type Config struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	TaskURL string `yaml:"task_url" mapstructure:"task_url"`
	RunURL  string `yaml:"run_url" mapstructure:"run_url"`
	DataURL string `yaml:"data_url" mapstructure:"data_url"`
}

// Notifier posts finished-run notifications.
type Notifier struct {
	cfg    Config
	client *http.Client
}

// New creates a Notifier with the given config.
func New(cfg Config) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type emailTask struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Email announces a finished run for the retailer and its categories.
// Errors are logged, never returned.
func (n *Notifier) Email(ctx context.Context, retailerName string, env model.RunEnv, categories []string) {
	if !n.cfg.Enabled || n.cfg.TaskURL == "" {
		return
	}

	pluralCategory := "category"
	if len(categories) > 1 {
		pluralCategory = "categories"
	}
	joined := strings.Join(categories, ", ")

	message := "Hello! <br /><br />" +
		fmt.Sprintf("Scraping successfully finished for the retailer <b>%s</b> and %s: <b>%s</b>.<br /><br />", retailerName, pluralCategory, joined) +
		fmt.Sprintf("Link to run: %s/%s<br />", strings.TrimRight(n.cfg.RunURL, "/"), env.RunID) +
		fmt.Sprintf("Link to dataset: %s/%s/items?clean=true&format=json<br />", strings.TrimRight(n.cfg.DataURL, "/"), env.DatasetID) +
		"<br /><br />Scraper Robot"

	task := emailTask{
		Subject: fmt.Sprintf("Data ready for <b>%s</b> and %s: <b>%s</b>", retailerName, pluralCategory, joined),
		HTML:    message,
	}

	if err := n.post(ctx, task); err != nil {
		zap.L().Error("notify: email task failed", zap.Error(err))
		return
	}
	zap.L().Info("notify: email task started", zap.String("retailer", retailerName))
}

func (n *Notifier) post(ctx context.Context, task emailTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "notify: marshal task")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.TaskURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "notify: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: post")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return eris.Errorf("notify: email task returned %d", resp.StatusCode)
	}
	return nil
}
