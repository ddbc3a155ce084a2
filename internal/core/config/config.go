package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AuthModeProxy = "proxy"
	AuthModeOAuth = "oauth"

	ClickSourceHTTP  = "http"
	ClickSourceKafka = "kafka"
)

const DefaultWatershedURL = "http://hydro.arcgis.com/arcgis/rest/services/Tools/Hydrology/GPServer/Watershed"

type GeoprocessingCfg struct {
	URL          string
	ProxyURL     string
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

type AuthCfg struct {
	Mode            string
	PortalURL       string
	ClientID        string
	ClientSecret    string
	CredentialTTL   time.Duration
	CredentialCache int
}

type ViewCfg struct {
	WKID    int
	CenterX float64
	CenterY float64
	Zoom    int
}

type EventsCfg struct {
	Enabled   bool
	Brokers   string
	Topic     string
	QueueSize int
}

type ClicksCfg struct {
	Source  string
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	// LogSampleN keeps one debug/info line in N; 0 or 1 logs everything
	LogSampleN int

	MetricsEnabled bool
	RedisAddr      string
	H3Res          int
	GP             GeoprocessingCfg
	Auth           AuthCfg
	View           ViewCfg
	Events         EventsCfg
	Clicks         ClicksCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 7)
	if res < 0 || res > 15 {
		res = 7
	}

	mode := strings.ToLower(getenv("AUTH_MODE", AuthModeProxy))
	if mode != AuthModeOAuth {
		mode = AuthModeProxy
	}

	brokers := getenv("KAFKA_BROKERS", "localhost:9092")

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		RedisAddr:      getenv("REDIS_ADDR", ""),
		H3Res:          res,
		GP: GeoprocessingCfg{
			URL:          getenv("GP_URL", DefaultWatershedURL),
			ProxyURL:     getenv("GP_PROXY_URL", ""),
			PollInterval: getduration("GP_POLL_INTERVAL", time.Second),
			HTTPTimeout:  getduration("GP_HTTP_TIMEOUT", 30*time.Second),
		},
		Auth: AuthCfg{
			Mode:            mode,
			PortalURL:       getenv("PORTAL_URL", "https://www.arcgis.com/sharing"),
			ClientID:        getenv("OAUTH_CLIENT_ID", ""),
			ClientSecret:    getenv("OAUTH_CLIENT_SECRET", ""),
			CredentialTTL:   getduration("CREDENTIAL_TTL", 2*time.Hour),
			CredentialCache: getint("CREDENTIAL_CACHE_SIZE", 128),
		},
		View: ViewCfg{
			WKID:    getint("VIEW_WKID", 4326),
			CenterX: getfloat("VIEW_CENTER_X", -116.5403131),
			CenterY: getfloat("VIEW_CENTER_Y", 33.8258166),
			Zoom:    getint("VIEW_ZOOM", 10),
		},
		Events: EventsCfg{
			Enabled:   getbool("EVENTS_ENABLED", false),
			Brokers:   brokers,
			Topic:     getenv("KAFKA_EVENTS_TOPIC", "watershed-jobs"),
			QueueSize: getint("EVENTS_QUEUE", 1024),
		},
		Clicks: ClicksCfg{
			Source:  strings.ToLower(getenv("CLICK_SOURCE", ClickSourceHTTP)),
			Brokers: brokers,
			Topic:   getenv("KAFKA_CLICK_TOPIC", "watershed-clicks"),
			GroupID: getenv("KAFKA_GROUP_ID", "watershed-gateway"),
		},
	}
}

// ServiceURL is the geoprocessing endpoint the session talks to in the configured auth mode
func (c Config) ServiceURL() string {
	if c.Auth.Mode == AuthModeProxy && c.GP.ProxyURL != "" {
		return c.GP.ProxyURL
	}
	return c.GP.URL
}

// SplitCSV splits a comma separated broker list
func SplitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
