package config

import (
	"flag"
	"net"
	"regexp"
	"strconv"

	"gitlab.com/MikeTTh/env"

	"github.com/openfield/canvass/civicrm"
)

type Config struct {
	Addr   string
	DBPath string
	Debug  bool
	CRM    civicrm.Config
}

func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", "0.0.0.0", "listen host name (default 0.0.0.0)")
	var port uint
	flag.UintVar(&port, "port", 8080, "listen port number (default 8080)")
	flag.StringVar(&cfg.DBPath, "db-path", "canvass.sqlite", "path to SQLite3 DB file (default canvass.sqlite)")
	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))

	// CRM credentials come from the environment, not argv.
	cfg.CRM = civicrm.Config{
		Endpoint:    env.String("CIVICRM_API_ENDPOINT", ""),
		SiteKey:     env.String("CIVICRM_SITE_KEY", ""),
		APIKey:      env.String("CIVICRM_API_KEY", ""),
		CustomGroup: env.String("CIVICRM_CUSTOM_GROUP", "Poll_Responses"),
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
