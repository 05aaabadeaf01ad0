package config

import "time"

type AppConfig struct {
	DBDriver   string        `yaml:"db_driver" env:"CAMPUS_DB_DRIVER" env-default:"sqlite"`
	DBURL      string        `yaml:"db_url" env:"CAMPUS_DB_URL"`
	DBPath     string        `yaml:"db_path" env:"CAMPUS_DB_PATH" env-default:"data/campus.db"`
	ListenAddr string        `yaml:"listen_addr" env:"CAMPUS_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"CAMPUS_SESSION_TTL" env-default:"3h"`
	CSRFKey    string        `yaml:"csrf_key" env:"CAMPUS_CSRF_KEY"`
	Pepper     string        `yaml:"pepper" env:"CAMPUS_PEPPER"`
	Timezone   string        `yaml:"timezone" env:"CAMPUS_TIMEZONE" env-default:"Asia/Manila"`

	Incidents IncidentsConfig `yaml:"incidents"`
	Mail      MailConfig      `yaml:"mail"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
}

type IncidentsConfig struct {
	ResolvedIDPrefix string `yaml:"resolved_id_prefix" env:"CAMPUS_INCIDENTS_RESOLVED_ID_PREFIX" env-default:"RSV"`
	AdminIDPrefix    string `yaml:"admin_id_prefix" env:"CAMPUS_INCIDENTS_ADMIN_ID_PREFIX" env-default:"ADM"`
	FeedLimit        int    `yaml:"feed_limit" env:"CAMPUS_INCIDENTS_FEED_LIMIT" env-default:"60"`
	ReminderAfterMin int    `yaml:"reminder_after_min" env:"CAMPUS_INCIDENTS_REMINDER_AFTER_MIN" env-default:"120"`
}

type MailConfig struct {
	Enabled  bool   `yaml:"enabled" env:"CAMPUS_MAIL_ENABLED" env-default:"false"`
	Host     string `yaml:"host" env:"CAMPUS_MAIL_HOST"`
	Port     int    `yaml:"port" env:"CAMPUS_MAIL_PORT" env-default:"587"`
	Username string `yaml:"username" env:"CAMPUS_MAIL_USERNAME"`
	Password string `yaml:"password" env:"CAMPUS_MAIL_PASSWORD"`
	From     string `yaml:"from" env:"CAMPUS_MAIL_FROM"`
}

type GeocodingConfig struct {
	Enabled    bool   `yaml:"enabled" env:"CAMPUS_GEOCODING_ENABLED" env-default:"true"`
	BaseURL    string `yaml:"base_url" env:"CAMPUS_GEOCODING_BASE_URL" env-default:"https://nominatim.openstreetmap.org"`
	TimeoutSec int    `yaml:"timeout_sec" env:"CAMPUS_GEOCODING_TIMEOUT" env-default:"15"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled" env:"CAMPUS_SCHEDULER_ENABLED" env-default:"true"`
	PurgeSpec    string `yaml:"purge_spec" env:"CAMPUS_SCHEDULER_PURGE_SPEC" env-default:"@every 10m"`
	ReminderSpec string `yaml:"reminder_spec" env:"CAMPUS_SCHEDULER_REMINDER_SPEC" env-default:"@every 30m"`
}

type SecurityConfig struct {
	OnlineWindowSec int `yaml:"online_window_sec" env:"CAMPUS_SECURITY_ONLINE_WINDOW_SEC" env-default:"300"`
}

const maxAdminSessionTTL = 3 * time.Hour

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	ttl := maxAdminSessionTTL
	if c != nil && c.SessionTTL > 0 {
		ttl = c.SessionTTL
	}
	if ttl > maxAdminSessionTTL {
		return maxAdminSessionTTL
	}
	return ttl
}
