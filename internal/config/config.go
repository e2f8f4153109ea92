package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Risk        RiskConfig        `json:"risk" yaml:"risk"`
	API         APIConfig         `json:"api" yaml:"api"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Assessments AssessmentsConfig `json:"assessments" yaml:"assessments"`
	Escalations EscalationsConfig `json:"escalations" yaml:"escalations"`
}

type IngestConfig struct {
	ChannelBuffer int            `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig     `json:"rest" yaml:"rest"`
	FileTail      FileTailConfig `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig   `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"`
}

// RiskConfig carries every weight, window, and threshold of the risk model.
// Nothing in the rule bodies is hard-coded; Validate rejects unusable values
// at startup rather than letting a zero weight vanish mid-evaluation.
type RiskConfig struct {
	Timezone   string `json:"timezone" yaml:"timezone"`
	DayStart   string `json:"day_start" yaml:"day_start"`
	DuskStart  string `json:"dusk_start" yaml:"dusk_start"`
	NightStart string `json:"night_start" yaml:"night_start"`

	BurstMerge    time.Duration `json:"burst_merge" yaml:"burst_merge"`
	SessionBreak  time.Duration `json:"session_break" yaml:"session_break"`
	StayGap       time.Duration `json:"stay_gap" yaml:"stay_gap"`
	Bucket        time.Duration `json:"bucket" yaml:"bucket"`
	ShortWindow   time.Duration `json:"short_window" yaml:"short_window"`
	LongWindow    time.Duration `json:"long_window" yaml:"long_window"`
	CasingDays    int           `json:"casing_days" yaml:"casing_days"`
	WhitelistDays int           `json:"whitelist_days" yaml:"whitelist_days"`

	CorrelationTolerance time.Duration `json:"correlation_tolerance" yaml:"correlation_tolerance"`
	GroupMinMatches      int           `json:"group_min_matches" yaml:"group_min_matches"`

	QuickRevisitMin time.Duration `json:"quick_revisit_min" yaml:"quick_revisit_min"`
	QuickRevisitMax time.Duration `json:"quick_revisit_max" yaml:"quick_revisit_max"`

	DwellPairMax    time.Duration `json:"dwell_pair_max" yaml:"dwell_pair_max"`
	DwellLongSpan   time.Duration `json:"dwell_long_span" yaml:"dwell_long_span"`
	ReentryMax      time.Duration `json:"reentry_max" yaml:"reentry_max"`
	PatrolMinBursts int           `json:"patrol_min_bursts" yaml:"patrol_min_bursts"`

	DwellPerHit         time.Duration `json:"dwell_per_hit" yaml:"dwell_per_hit"`
	DwellPad            time.Duration `json:"dwell_pad" yaml:"dwell_pad"`
	NightStayDwell      time.Duration `json:"night_stay_dwell" yaml:"night_stay_dwell"`
	NightStayDwellMax   time.Duration `json:"night_stay_dwell_max" yaml:"night_stay_dwell_max"`
	NightStayMinBuckets int           `json:"night_stay_min_buckets" yaml:"night_stay_min_buckets"`

	RadarRepeatMin       int           `json:"radar_repeat_min" yaml:"radar_repeat_min"`
	RadarLingerGap       time.Duration `json:"radar_linger_gap" yaml:"radar_linger_gap"`
	RadarLingerSpeed     float64       `json:"radar_linger_speed" yaml:"radar_linger_speed"`
	RadarLingerBlackHits int           `json:"radar_linger_black_hits" yaml:"radar_linger_black_hits"`

	CasingMinDays         int `json:"casing_min_days" yaml:"casing_min_days"`
	CasingMinDaySightings int `json:"casing_min_day_sightings" yaml:"casing_min_day_sightings"`
	WhitelistMinDays      int `json:"whitelist_min_days" yaml:"whitelist_min_days"`

	DedupeWindow       time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	EscalationCooldown time.Duration `json:"escalation_cooldown" yaml:"escalation_cooldown"`

	Weights    WeightsConfig    `json:"weights" yaml:"weights"`
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`
}

type WeightsConfig struct {
	NightActivity      int   `json:"night_activity" yaml:"night_activity"`
	DuskActivity       int   `json:"dusk_activity" yaml:"dusk_activity"`
	BucketDensity      []int `json:"bucket_density" yaml:"bucket_density"`
	SessionLongGap     int   `json:"session_long_gap" yaml:"session_long_gap"`
	QuickRevisit       int   `json:"quick_revisit" yaml:"quick_revisit"`
	NightAOIEntry      int   `json:"night_aoi_entry" yaml:"night_aoi_entry"`
	DayAOIEntry        int   `json:"day_aoi_entry" yaml:"day_aoi_entry"`
	DwellNight         int   `json:"dwell_night" yaml:"dwell_night"`
	DwellDay           int   `json:"dwell_day" yaml:"dwell_day"`
	DwellLongNight     int   `json:"dwell_long_night" yaml:"dwell_long_night"`
	ReentryNight       int   `json:"reentry_night" yaml:"reentry_night"`
	ReentryDay         int   `json:"reentry_day" yaml:"reentry_day"`
	PatrolNight        int   `json:"patrol_night" yaml:"patrol_night"`
	PatrolDay          int   `json:"patrol_day" yaml:"patrol_day"`
	CompanionNight     int   `json:"companion_night" yaml:"companion_night"`
	CompanionDay       int   `json:"companion_day" yaml:"companion_day"`
	CorroborationRadar int   `json:"corroboration_radar" yaml:"corroboration_radar"`
	CorroborationOther int   `json:"corroboration_other" yaml:"corroboration_other"`
	RadarRepeat        int   `json:"radar_repeat" yaml:"radar_repeat"`
	RadarLingerNight   int   `json:"radar_linger_night" yaml:"radar_linger_night"`
	RadarLingerDay     int   `json:"radar_linger_day" yaml:"radar_linger_day"`
	MultiDayCasing     int   `json:"multi_day_casing" yaml:"multi_day_casing"`
}

type ThresholdsConfig struct {
	Black       int `json:"black" yaml:"black"`
	StrongAlert int `json:"strong_alert" yaml:"strong_alert"`
	Gray        int `json:"gray" yaml:"gray"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type AssessmentsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type EscalationsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC"},
		},
		Risk: RiskConfig{
			Timezone:   "Local",
			DayStart:   "06:00",
			DuskStart:  "19:00",
			NightStart: "21:00",

			BurstMerge:    90 * time.Second,
			SessionBreak:  15 * time.Minute,
			StayGap:       12 * time.Minute,
			Bucket:        5 * time.Minute,
			ShortWindow:   30 * time.Minute,
			LongWindow:    90 * time.Minute,
			CasingDays:    7,
			WhitelistDays: 14,

			CorrelationTolerance: 2 * time.Minute,
			GroupMinMatches:      2,

			QuickRevisitMin: 15 * time.Minute,
			QuickRevisitMax: 2 * time.Hour,

			DwellPairMax:    2 * time.Minute,
			DwellLongSpan:   3 * time.Minute,
			ReentryMax:      10 * time.Minute,
			PatrolMinBursts: 2,

			DwellPerHit:         7 * time.Minute,
			DwellPad:            15 * time.Minute,
			NightStayDwell:      15 * time.Minute,
			NightStayDwellMax:   20 * time.Minute,
			NightStayMinBuckets: 3,

			RadarRepeatMin:       2,
			RadarLingerGap:       5 * time.Minute,
			RadarLingerSpeed:     1.0,
			RadarLingerBlackHits: 3,

			CasingMinDays:         2,
			CasingMinDaySightings: 2,
			WhitelistMinDays:      6,

			DedupeWindow:       2 * time.Minute,
			EscalationCooldown: 10 * time.Minute,

			Weights: WeightsConfig{
				NightActivity:      25,
				DuskActivity:       10,
				BucketDensity:      []int{2, 8, 14, 20},
				SessionLongGap:     4,
				QuickRevisit:       6,
				NightAOIEntry:      25,
				DayAOIEntry:        10,
				DwellNight:         15,
				DwellDay:           8,
				DwellLongNight:     10,
				ReentryNight:       12,
				ReentryDay:         6,
				PatrolNight:        10,
				PatrolDay:          6,
				CompanionNight:     15,
				CompanionDay:       8,
				CorroborationRadar: 12,
				CorroborationOther: 10,
				RadarRepeat:        8,
				RadarLingerNight:   15,
				RadarLingerDay:     6,
				MultiDayCasing:     10,
			},
			Thresholds: ThresholdsConfig{Black: 70, StrongAlert: 55, Gray: 30},
		},
		API:         APIConfig{Enabled: true, Addr: ":8081"},
		Storage:     StorageConfig{Driver: "sqlite", DSN: "file:perimguard.db?_pragma=busy_timeout(5000)"},
		Assessments: AssessmentsConfig{StoreLimit: 5000},
		Escalations: EscalationsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = def.Ingest.Parser.Timezone
	}
	if cfg.Assessments.StoreLimit <= 0 {
		cfg.Assessments.StoreLimit = def.Assessments.StoreLimit
	}
	if cfg.Escalations.StoreLimit <= 0 {
		cfg.Escalations.StoreLimit = def.Escalations.StoreLimit
	}
	if cfg.Risk.Timezone == "" {
		cfg.Risk.Timezone = def.Risk.Timezone
	}
	if len(cfg.Risk.Weights.BucketDensity) == 0 {
		cfg.Risk.Weights.BucketDensity = def.Risk.Weights.BucketDensity
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Driver == "" {
		return errors.New("storage.driver required")
	}
	return validateRisk(&cfg.Risk)
}

func validateRisk(r *RiskConfig) error {
	if _, err := r.Bounds(); err != nil {
		return err
	}
	durations := map[string]time.Duration{
		"risk.burst_merge":           r.BurstMerge,
		"risk.session_break":         r.SessionBreak,
		"risk.stay_gap":              r.StayGap,
		"risk.bucket":                r.Bucket,
		"risk.short_window":          r.ShortWindow,
		"risk.long_window":           r.LongWindow,
		"risk.correlation_tolerance": r.CorrelationTolerance,
		"risk.quick_revisit_min":     r.QuickRevisitMin,
		"risk.quick_revisit_max":     r.QuickRevisitMax,
		"risk.dwell_pair_max":        r.DwellPairMax,
		"risk.dwell_long_span":       r.DwellLongSpan,
		"risk.reentry_max":           r.ReentryMax,
		"risk.dwell_per_hit":         r.DwellPerHit,
		"risk.dwell_pad":             r.DwellPad,
		"risk.night_stay_dwell":      r.NightStayDwell,
		"risk.night_stay_dwell_max":  r.NightStayDwellMax,
		"risk.radar_linger_gap":      r.RadarLingerGap,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if r.QuickRevisitMax <= r.QuickRevisitMin {
		return errors.New("risk.quick_revisit_max must exceed risk.quick_revisit_min")
	}
	if r.CasingDays <= 0 || r.WhitelistDays <= 0 {
		return errors.New("risk.casing_days and risk.whitelist_days must be positive")
	}
	if r.GroupMinMatches < 1 {
		return errors.New("risk.group_min_matches must be >= 1")
	}
	if r.PatrolMinBursts < 1 || r.RadarRepeatMin < 1 || r.RadarLingerBlackHits < 1 {
		return errors.New("risk burst/hit minimums must be >= 1")
	}
	if r.NightStayMinBuckets < 1 {
		return errors.New("risk.night_stay_min_buckets must be >= 1")
	}
	if r.RadarLingerSpeed <= 0 {
		return errors.New("risk.radar_linger_speed must be > 0")
	}
	if r.CasingMinDays < 1 || r.CasingMinDaySightings < 1 || r.WhitelistMinDays < 1 {
		return errors.New("risk casing/whitelist day minimums must be >= 1")
	}
	w := r.Weights
	weights := map[string]int{
		"night_activity":      w.NightActivity,
		"dusk_activity":       w.DuskActivity,
		"session_long_gap":    w.SessionLongGap,
		"quick_revisit":       w.QuickRevisit,
		"night_aoi_entry":     w.NightAOIEntry,
		"day_aoi_entry":       w.DayAOIEntry,
		"dwell_night":         w.DwellNight,
		"dwell_day":           w.DwellDay,
		"dwell_long_night":    w.DwellLongNight,
		"reentry_night":       w.ReentryNight,
		"reentry_day":         w.ReentryDay,
		"patrol_night":        w.PatrolNight,
		"patrol_day":          w.PatrolDay,
		"companion_night":     w.CompanionNight,
		"companion_day":       w.CompanionDay,
		"corroboration_radar": w.CorroborationRadar,
		"corroboration_other": w.CorroborationOther,
		"radar_repeat":        w.RadarRepeat,
		"radar_linger_night":  w.RadarLingerNight,
		"radar_linger_day":    w.RadarLingerDay,
		"multi_day_casing":    w.MultiDayCasing,
	}
	for name, weight := range weights {
		if weight <= 0 {
			return fmt.Errorf("risk.weights.%s must be > 0", name)
		}
	}
	if len(w.BucketDensity) != 4 {
		return errors.New("risk.weights.bucket_density must list exactly 4 weights")
	}
	for i, weight := range w.BucketDensity {
		if weight <= 0 {
			return fmt.Errorf("risk.weights.bucket_density[%d] must be > 0", i)
		}
	}
	t := r.Thresholds
	if t.Gray <= 0 || t.StrongAlert <= t.Gray || t.Black <= t.StrongAlert {
		return errors.New("risk.thresholds must satisfy 0 < gray < strong_alert < black")
	}
	return nil
}

// BandBounds is the resolved local-time banding: [day, dusk) is DAY,
// [dusk, night) is DUSK, everything else NIGHT.
type BandBounds struct {
	DayStart   int // minutes since local midnight
	DuskStart  int
	NightStart int
	Location   *time.Location
}

func (r *RiskConfig) Bounds() (BandBounds, error) {
	day, err := parseClock(r.DayStart)
	if err != nil {
		return BandBounds{}, fmt.Errorf("risk.day_start: %w", err)
	}
	dusk, err := parseClock(r.DuskStart)
	if err != nil {
		return BandBounds{}, fmt.Errorf("risk.dusk_start: %w", err)
	}
	night, err := parseClock(r.NightStart)
	if err != nil {
		return BandBounds{}, fmt.Errorf("risk.night_start: %w", err)
	}
	if !(day < dusk && dusk < night) {
		return BandBounds{}, errors.New("risk band starts must satisfy day < dusk < night")
	}
	loc := time.Local
	if r.Timezone != "" && !strings.EqualFold(r.Timezone, "local") {
		loc, err = time.LoadLocation(r.Timezone)
		if err != nil {
			return BandBounds{}, fmt.Errorf("risk.timezone: %w", err)
		}
	}
	return BandBounds{DayStart: day, DuskStart: dusk, NightStart: night, Location: loc}, nil
}

func parseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config; Reload and Watch are inert.
// Used when no config file is given and by tests.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
