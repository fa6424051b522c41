// Package upload pushes the dataset export to the downstream drop zone.
// Like notification it is best-effort: a failed upload is logged and the
// run carries on.
package upload

import (
	"bytes"
	"context"
	"net"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/consumer-puls/insights-scraper/internal/window"
)

// Config holds the FTP drop zone settings. Enabled is only set in the
// managed environment.
type Config struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
}

// FTP uploads export blobs over FTP.
type FTP struct {
	cfg     Config
	timeout time.Duration
}

// NewFTP creates an uploader for the configured drop zone.
func NewFTP(cfg Config) *FTP {
	return &FTP{cfg: cfg, timeout: 30 * time.Second}
}

// Dataset uploads the export blob under <dir>/<datasetName>/<datasetDate>.json.
// An empty datasetDate defaults to today. Errors are logged, never returned.
func (u *FTP) Dataset(ctx context.Context, datasetName, datasetDate string, export []byte) {
	if !u.cfg.Enabled {
		return
	}
	if datasetDate == "" {
		datasetDate = window.DateString(time.Now())
	}

	remote := path.Join(u.cfg.Dir, datasetName, datasetDate+".json")
	if err := u.store(ctx, remote, export); err != nil {
		zap.L().Error("upload: dataset upload failed",
			zap.String("remote", remote),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("upload: dataset uploaded",
		zap.String("remote", remote),
		zap.Int("bytes", len(export)),
	)
}

func (u *FTP) store(ctx context.Context, remote string, data []byte) error {
	host := u.cfg.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(u.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "upload: dial")
	}
	defer conn.Quit()

	if u.cfg.User != "" {
		if err := conn.Login(u.cfg.User, u.cfg.Password); err != nil {
			return eris.Wrap(err, "upload: login")
		}
	}

	if dir := path.Dir(remote); dir != "." && dir != "/" {
		// Best effort; the directory usually exists already.
		_ = conn.MakeDir(dir)
	}

	if err := conn.Stor(remote, bytes.NewReader(data)); err != nil {
		return eris.Wrap(err, "upload: stor")
	}
	return nil
}
