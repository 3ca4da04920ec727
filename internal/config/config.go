// Package config resolves fieldops settings.
//
// Priority for every key: environment variable > .env in the working
// directory > ~/.config/fieldops/config.json > built-in default.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/marcus/fieldops/internal/fielderr"
	"github.com/marcus/fieldops/internal/permission"
	"github.com/marcus/fieldops/internal/suggest"
	"github.com/robfig/cron/v3"
)

const (
	configFile = "config.json"
	lockFile   = "config.json.lock"
)

// Defaults
const (
	DefaultServerURL         = "http://localhost:8080"
	DefaultTimezone          = "Asia/Kolkata"
	DefaultRequestTimeout    = 15 * time.Second
	DefaultSampleInterval    = 30 * time.Second
	DefaultFixTimeout        = 10 * time.Second
	DefaultReconcileSchedule = "*/15 * * * *"

	// MinSampleInterval is the shortest accepted sampling cadence.
	MinSampleInterval = 10 * time.Second
)

// Permissions holds the configured answers for device capabilities.
type Permissions struct {
	Location string `json:"location,omitempty"`
	Camera   string `json:"camera,omitempty"`
}

// File is the on-disk shape of config.json. Durations are stored as
// duration strings ("30s").
type File struct {
	ServerURL          string      `json:"server_url,omitempty"`
	APIToken           string      `json:"api_token,omitempty"`
	DeviceID           string      `json:"device_id,omitempty"`
	Timezone           string      `json:"timezone,omitempty"`
	RequestTimeout     string      `json:"request_timeout,omitempty"`
	SampleInterval     string      `json:"sample_interval,omitempty"`
	FixTimeout         string      `json:"fix_timeout,omitempty"`
	BackgroundTracking *bool       `json:"background_tracking,omitempty"`
	Permissions        Permissions `json:"permissions,omitempty"`
	ReconcileSchedule  string      `json:"reconcile_schedule,omitempty"`
	DataDir            string      `json:"data_dir,omitempty"`
}

// Config is the resolved configuration.
type Config struct {
	ServerURL          string
	APIToken           string
	DeviceID           string
	Timezone           string
	RequestTimeout     time.Duration
	SampleInterval     time.Duration
	FixTimeout         time.Duration
	BackgroundTracking bool
	LocationPermission permission.Decision
	CameraPermission   permission.Decision
	ReconcileSchedule  string
	DataDir            string
}

// Platform returns a permission platform answering from the configured decisions.
func (c *Config) Platform() permission.StaticPlatform {
	return permission.StaticPlatform{
		permission.Location: c.LocationPermission,
		permission.Camera:   c.CameraPermission,
	}
}

// Source says where a resolved value came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
)

// Key describes one settable key.
type Key struct {
	Name string
	Env  string

	def   func() string
	check func(string) error
	get   func(*File) string
	set   func(*File, string)
}

// Entry is one resolved key for display.
type Entry struct {
	Name   string
	Value  string
	Source Source
}

var keys = []Key{
	{
		Name: "server_url", Env: "FIELDOPS_SERVER_URL",
		def:   constant(DefaultServerURL),
		check: checkURL,
		get:   func(f *File) string { return f.ServerURL },
		set:   func(f *File, v string) { f.ServerURL = v },
	},
	{
		Name: "api_token", Env: "FIELDOPS_TOKEN",
		def: constant(""),
		get: func(f *File) string { return f.APIToken },
		set: func(f *File, v string) { f.APIToken = v },
	},
	{
		Name: "timezone", Env: "FIELDOPS_TZ",
		def:   constant(DefaultTimezone),
		check: checkTimezone,
		get:   func(f *File) string { return f.Timezone },
		set:   func(f *File, v string) { f.Timezone = v },
	},
	{
		Name: "request_timeout", Env: "FIELDOPS_REQUEST_TIMEOUT",
		def:   constant(DefaultRequestTimeout.String()),
		check: checkDuration,
		get:   func(f *File) string { return f.RequestTimeout },
		set:   func(f *File, v string) { f.RequestTimeout = v },
	},
	{
		Name: "sample_interval", Env: "FIELDOPS_SAMPLE_INTERVAL",
		def:   constant(DefaultSampleInterval.String()),
		check: checkDuration,
		get:   func(f *File) string { return f.SampleInterval },
		set:   func(f *File, v string) { f.SampleInterval = v },
	},
	{
		Name: "fix_timeout", Env: "FIELDOPS_FIX_TIMEOUT",
		def:   constant(DefaultFixTimeout.String()),
		check: checkDuration,
		get:   func(f *File) string { return f.FixTimeout },
		set:   func(f *File, v string) { f.FixTimeout = v },
	},
	{
		Name: "background_tracking", Env: "FIELDOPS_BACKGROUND_TRACKING",
		def:   constant("false"),
		check: checkBool,
		get: func(f *File) string {
			if f.BackgroundTracking == nil {
				return ""
			}
			return strconv.FormatBool(*f.BackgroundTracking)
		},
		set: func(f *File, v string) {
			if v == "" {
				f.BackgroundTracking = nil
				return
			}
			b, _ := parseBool(v)
			f.BackgroundTracking = &b
		},
	},
	{
		Name: "permissions.location", Env: "FIELDOPS_PERMISSION_LOCATION",
		def:   constant(permission.Granted.String()),
		check: checkDecision,
		get:   func(f *File) string { return f.Permissions.Location },
		set:   func(f *File, v string) { f.Permissions.Location = v },
	},
	{
		Name: "permissions.camera", Env: "FIELDOPS_PERMISSION_CAMERA",
		def:   constant(permission.Granted.String()),
		check: checkDecision,
		get:   func(f *File) string { return f.Permissions.Camera },
		set:   func(f *File, v string) { f.Permissions.Camera = v },
	},
	{
		Name: "reconcile_schedule", Env: "FIELDOPS_RECONCILE_SCHEDULE",
		def:   constant(DefaultReconcileSchedule),
		check: checkSchedule,
		get:   func(f *File) string { return f.ReconcileSchedule },
		set:   func(f *File, v string) { f.ReconcileSchedule = v },
	},
	{
		Name: "data_dir", Env: "FIELDOPS_DATA_DIR",
		def: defaultDataDir,
		get: func(f *File) string { return f.DataDir },
		set: func(f *File, v string) { f.DataDir = v },
	},
}

// Keys returns the names of all settable keys in display order.
func Keys() []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return names
}

func lookup(name string) (Key, error) {
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}
	if near := suggest.Closest(name, Keys()); len(near) > 0 {
		return Key{}, fmt.Errorf("%w: unknown config key %q (did you mean %s?)",
			fielderr.ErrInvalidInput, name, strings.Join(near, ", "))
	}
	return Key{}, fmt.Errorf("%w: unknown config key %q (known: %s)",
		fielderr.ErrInvalidInput, name, strings.Join(Keys(), ", "))
}

// Dir returns ~/.config/fieldops.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "fieldops"), nil
}

// LoadDotEnv loads path (".env" when empty) into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFile reads config.json. A missing file yields an empty File.
func LoadFile() (*File, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &f, nil
}

// SaveFile writes config.json using atomic write (temp file + rename)
func SaveFile(f *File) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	// The file may hold the API token.
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, filepath.Join(dir, configFile))
}

// Update applies fn to config.json under the config lock.
func Update(fn func(*File) error) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return withConfigLock(filepath.Join(dir, lockFile), func() error {
		f, err := LoadFile()
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return SaveFile(f)
	})
}

// Set validates and stores one key in config.json. An empty value clears it.
func Set(name, value string) error {
	k, err := lookup(name)
	if err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value != "" && k.check != nil {
		if err := k.check(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return Update(func(f *File) error {
		k.set(f, value)
		return nil
	})
}

// Get returns the resolved value of one key and where it came from.
func Get(name string) (Entry, error) {
	k, err := lookup(name)
	if err != nil {
		return Entry{}, err
	}
	f, err := LoadFile()
	if err != nil {
		return Entry{}, err
	}
	return resolve(k, f), nil
}

// List resolves every key.
func List() ([]Entry, error) {
	f, err := LoadFile()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = resolve(k, f)
	}
	return out, nil
}

// resolve applies env > file > default. Invalid env or file values fall
// through to the next source.
func resolve(k Key, f *File) Entry {
	valid := func(v string) bool {
		return v != "" && (k.check == nil || k.check(v) == nil)
	}
	if v := strings.TrimSpace(os.Getenv(k.Env)); valid(v) {
		return Entry{Name: k.Name, Value: v, Source: SourceEnv}
	}
	if v := k.get(f); valid(v) {
		return Entry{Name: k.Name, Value: v, Source: SourceFile}
	}
	return Entry{Name: k.Name, Value: k.def(), Source: SourceDefault}
}

// Load resolves the full configuration. The caller loads .env first.
func Load() (*Config, error) {
	entries, err := List()
	if err != nil {
		return nil, err
	}
	v := make(map[string]string, len(entries))
	for _, e := range entries {
		v[e.Name] = e.Value
	}

	cfg := &Config{
		ServerURL:         strings.TrimRight(v["server_url"], "/"),
		APIToken:          v["api_token"],
		Timezone:          v["timezone"],
		ReconcileSchedule: v["reconcile_schedule"],
		DataDir:           v["data_dir"],
	}
	// Values already passed their checks in resolve.
	cfg.RequestTimeout, _ = time.ParseDuration(v["request_timeout"])
	cfg.SampleInterval, _ = time.ParseDuration(v["sample_interval"])
	cfg.FixTimeout, _ = time.ParseDuration(v["fix_timeout"])
	cfg.BackgroundTracking, _ = parseBool(v["background_tracking"])
	cfg.LocationPermission, _ = permission.ParseDecision(v["permissions.location"])
	cfg.CameraPermission, _ = permission.ParseDecision(v["permissions.camera"])

	if cfg.SampleInterval < MinSampleInterval {
		cfg.SampleInterval = MinSampleInterval
	}

	id, err := DeviceID()
	if err != nil {
		return nil, err
	}
	cfg.DeviceID = id
	return cfg, nil
}

// DeviceID returns the device id stored in config.json, generating and
// persisting one on first use.
func DeviceID() (string, error) {
	f, err := LoadFile()
	if err != nil {
		return "", err
	}
	if f.DeviceID != "" {
		return f.DeviceID, nil
	}
	var id string
	err = Update(func(f *File) error {
		if f.DeviceID == "" {
			f.DeviceID = uuid.NewString()
		}
		id = f.DeviceID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}

func constant(s string) func() string { return func() string { return s } }

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldops"
	}
	return filepath.Join(home, ".local", "share", "fieldops")
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: not a boolean: %q", fielderr.ErrInvalidInput, v)
}

func checkBool(v string) error {
	_, err := parseBool(v)
	return err
}

func checkDuration(v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %v", fielderr.ErrInvalidInput, err)
	}
	if d <= 0 {
		return fmt.Errorf("%w: duration must be positive", fielderr.ErrInvalidInput)
	}
	return nil
}

func checkURL(v string) error {
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%w: server url must start with http:// or https://", fielderr.ErrInvalidInput)
	}
	return nil
}

func checkTimezone(v string) error {
	if v == DefaultTimezone {
		return nil
	}
	if _, err := time.LoadLocation(v); err != nil {
		return fmt.Errorf("%w: %v", fielderr.ErrInvalidInput, err)
	}
	return nil
}

func checkDecision(v string) error {
	_, err := permission.ParseDecision(v)
	return err
}

func checkSchedule(v string) error {
	if _, err := cron.ParseStandard(v); err != nil {
		return fmt.Errorf("%w: %v", fielderr.ErrInvalidInput, err)
	}
	return nil
}
