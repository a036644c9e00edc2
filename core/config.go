// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
)

// Environment keys read by LoadConfiguration.
const (
	KeyAppName            = "TRACER_APP_NAME"
	KeyDebug              = "TRACER_DEBUG"
	KeyInstanceExtensions = "TRACER_INSTANCE_EXTENSIONS"
	KeyDeviceExtensions   = "TRACER_DEVICE_EXTENSIONS"
	KeyPageSize           = "TRACER_PAGE_SIZE"
	KeyScratchPolicy      = "TRACER_SCRATCH_POLICY"
	KeyWaitTimeout        = "TRACER_WAIT_TIMEOUT"
	KeyUpdatesPerSecond   = "TRACER_UPDATES_PER_SECOND"
	KeyEventPollDelay     = "TRACER_EVENT_POLL_DELAY"
	KeyLogLevel           = "TRACER_LOG_LEVEL"
	KeyLogFormat          = "TRACER_LOG_FORMAT"
	KeyScreenWidth        = "TRACER_SCREEN_WIDTH"
	KeyScreenHeight       = "TRACER_SCREEN_HEIGHT"
)

// Configuration defines a global tracer configuration setting
type Configuration struct {
	AppName string
	Debug   bool

	Time     TimeConfiguration
	Renderer RendererConfiguration
	Log      LogConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// UpdatesPerSecond caps how often the scene is updated.
	// To unlimit, set to 0
	UpdatesPerSecond int

	// EventPollDelay is the delay between window event polls, in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the ray tracing device
type RendererConfiguration struct {
	InstanceExtensions []string
	DeviceExtensions   []string

	// PageSize is the size of memory pages the allocator carves buffers from
	PageSize uint64

	// ScratchPolicy is either "shared" or "per-entry"
	ScratchPolicy string

	// WaitTimeout bounds every wait for a build, zero waits forever
	WaitTimeout time.Duration

	ScreenWidth  uint32
	ScreenHeight uint32
}

// RequiredDeviceExtensions must be enabled on every device the tracer runs on.
var RequiredDeviceExtensions = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_deferred_host_operations",
	"VK_KHR_buffer_device_address",
}

// DefaultConfiguration is used for every key that is not set.
var DefaultConfiguration = Configuration{
	AppName: "tracer",
	Time: TimeConfiguration{
		UpdatesPerSecond: 60,
		EventPollDelay:   10,
	},
	Renderer: RendererConfiguration{
		DeviceExtensions: RequiredDeviceExtensions,
		PageSize:         64 << 20,
		ScratchPolicy:    "shared",
		ScreenWidth:      800,
		ScreenHeight:     600,
	},
	Log: LogConfiguration{
		Level:  "info",
		Format: "text",
	},
}

// LoadConfiguration reads the configuration from the environment. The given
// dotenv files only fill in variables that are not set yet, so the process
// environment wins over files and earlier files win over later ones.
func LoadConfiguration(files ...string) (Configuration, error) {
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			return Configuration{}, errors.Wrapf(err, "reading %s", file)
		}
		for key, value := range values {
			if _, err := envy.MustGet(key); err == nil {
				continue
			}
			envy.Set(key, value)
		}
	}

	def := DefaultConfiguration
	cfg := Configuration{
		AppName: envy.Get(KeyAppName, def.AppName),
		Renderer: RendererConfiguration{
			InstanceExtensions: list(envy.Get(KeyInstanceExtensions, "")),
			DeviceExtensions:   merge(def.Renderer.DeviceExtensions, list(envy.Get(KeyDeviceExtensions, ""))),
			ScratchPolicy:      envy.Get(KeyScratchPolicy, def.Renderer.ScratchPolicy),
		},
		Log: LogConfiguration{
			Level:  envy.Get(KeyLogLevel, def.Log.Level),
			Format: envy.Get(KeyLogFormat, def.Log.Format),
		},
	}

	var err error
	if cfg.Debug, err = boolean(KeyDebug, def.Debug); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.PageSize, err = unsigned(KeyPageSize, def.Renderer.PageSize, 64); err != nil {
		return Configuration{}, err
	}
	if cfg.Time.UpdatesPerSecond, err = integer(KeyUpdatesPerSecond, def.Time.UpdatesPerSecond); err != nil {
		return Configuration{}, err
	}
	if cfg.Time.EventPollDelay, err = integer(KeyEventPollDelay, def.Time.EventPollDelay); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.WaitTimeout, err = duration(KeyWaitTimeout, def.Renderer.WaitTimeout); err != nil {
		return Configuration{}, err
	}
	width, err := unsigned(KeyScreenWidth, uint64(def.Renderer.ScreenWidth), 32)
	if err != nil {
		return Configuration{}, err
	}
	height, err := unsigned(KeyScreenHeight, uint64(def.Renderer.ScreenHeight), 32)
	if err != nil {
		return Configuration{}, err
	}
	cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight = uint32(width), uint32(height)

	if cfg.Time.UpdatesPerSecond < 0 {
		return Configuration{}, errors.Newf("%s must not be negative", KeyUpdatesPerSecond)
	}
	return cfg, nil
}

func list(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// merge appends the extra names that are not in base yet.
func merge(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := map[string]bool{}
	for _, name := range base {
		seen[name] = true
	}
	for _, name := range extra {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func boolean(key string, def bool) (bool, error) {
	value := envy.Get(key, "")
	if value == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(value)
	return b, errors.Wrapf(err, "parsing %s", key)
}

func integer(key string, def int) (int, error) {
	value := envy.Get(key, "")
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	return n, errors.Wrapf(err, "parsing %s", key)
}

func unsigned(key string, def uint64, bits int) (uint64, error) {
	value := envy.Get(key, "")
	if value == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(value, 0, bits)
	return n, errors.Wrapf(err, "parsing %s", key)
}

func duration(key string, def time.Duration) (time.Duration, error) {
	value := envy.Get(key, "")
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	return d, errors.Wrapf(err, "parsing %s", key)
}
