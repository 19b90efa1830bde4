package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"peakrace/internal/domain"
)

// DefaultPath is where the Nakama module and the peer binary look for the race config.
const DefaultPath = "data/race_config.json"

// EnvPrefix prefixes every environment override key, e.g. peakrace_players_per_team.
const EnvPrefix = "peakrace_"

var ErrInvalidConfig = errors.New("invalid race config")

// Checkpoint is the location of the checkpoint that closes a map segment.
type Checkpoint struct {
	MapID    string          `json:"map_id"`
	Position domain.Position `json:"position"`
}

type RaceConfig struct {
	MaxTeams       int  `json:"max_teams"`
	PlayersPerTeam int  `json:"players_per_team"`
	FreeForAll     bool `json:"free_for_all"`
	// AssignInOrder fills teams to capacity instead of round-robin balancing at match start.
	AssignInOrder     bool `json:"assign_in_order"`
	MinPlayersToStart int  `json:"min_players_to_start"`

	RoundDurationSeconds int `json:"round_duration_seconds"`
	SettleDelayMillis    int `json:"settle_delay_ms"`
	RestoreDelayMillis   int `json:"restore_delay_ms"`
	RetryDelayMillis     int `json:"retry_delay_ms"`
	TickRate             int `json:"tick_rate"`

	Progression domain.Progression `json:"progression"`
	MapTiers    domain.PointTable  `json:"map_tiers"`
	Bonus       domain.BonusRules  `json:"bonus"`
	Checkpoints []Checkpoint       `json:"checkpoints"`

	// ArrivalRetries bounds how often a client resends an unacknowledged arrival.
	ArrivalRetries       int `json:"arrival_retries"`
	ArrivalTimeoutMillis int `json:"arrival_timeout_ms"`
}

// Default returns the built-in race configuration.
func Default() *RaceConfig {
	return &RaceConfig{
		MaxTeams:             5,
		PlayersPerTeam:       2,
		MinPlayersToStart:    1,
		RoundDurationSeconds: 600,
		SettleDelayMillis:    2000,
		RestoreDelayMillis:   1000,
		RetryDelayMillis:     1000,
		TickRate:             5,
		Progression:          domain.DefaultProgression(),
		MapTiers:             domain.DefaultPointTable(),
		ArrivalRetries:       5,
		ArrivalTimeoutMillis: 500,
	}
}

var (
	cfg      *RaceConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadRaceConfig loads the global race configuration from path once. A missing file keeps the
// defaults; env overrides are applied on top.
func LoadRaceConfig(path string, env map[string]string) error {
	loadOnce.Do(func() {
		c, err := Load(path)
		if err != nil {
			loadErr = err
			return
		}
		if err := c.ApplyEnv(env); err != nil {
			loadErr = err
			return
		}
		if err := c.Validate(); err != nil {
			loadErr = err
			return
		}
		cfg = c
	})
	return loadErr
}

// GetRaceConfig returns the global race configuration, or the defaults when none was loaded.
func GetRaceConfig() *RaceConfig {
	if cfg == nil {
		return Default()
	}
	return cfg
}

// Load reads a config file over the defaults. A missing file is not an error.
func Load(path string) (*RaceConfig, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read race config: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal race config: %w", err)
	}
	return c, nil
}

// Validate reports the first out-of-range field.
func (c *RaceConfig) Validate() error {
	switch {
	case c.MaxTeams < 1:
		return fmt.Errorf("%w: max_teams must be >= 1, got %d", ErrInvalidConfig, c.MaxTeams)
	case c.PlayersPerTeam < 1:
		return fmt.Errorf("%w: players_per_team must be >= 1, got %d", ErrInvalidConfig, c.PlayersPerTeam)
	case c.RoundDurationSeconds < 1:
		return fmt.Errorf("%w: round_duration_seconds must be >= 1, got %d", ErrInvalidConfig, c.RoundDurationSeconds)
	case c.TickRate < 1 || c.TickRate > 60:
		return fmt.Errorf("%w: tick_rate must be within 1..60, got %d", ErrInvalidConfig, c.TickRate)
	case c.SettleDelayMillis < 0 || c.RestoreDelayMillis < 0 || c.RetryDelayMillis < 0:
		return fmt.Errorf("%w: transition delays must not be negative", ErrInvalidConfig)
	case len(c.Progression) == 0:
		return fmt.Errorf("%w: progression must name at least one map", ErrInvalidConfig)
	case len(c.MapTiers) == 0:
		return fmt.Errorf("%w: map_tiers must not be empty", ErrInvalidConfig)
	case c.Bonus.SurvivorMultiplier < 0:
		return fmt.Errorf("%w: survivor_multiplier must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv overrides fields from peakrace_* keys. Unknown keys are ignored.
func (c *RaceConfig) ApplyEnv(env map[string]string) error {
	ints := map[string]*int{
		"max_teams":              &c.MaxTeams,
		"players_per_team":       &c.PlayersPerTeam,
		"min_players_to_start":   &c.MinPlayersToStart,
		"round_duration_seconds": &c.RoundDurationSeconds,
		"settle_delay_ms":        &c.SettleDelayMillis,
		"restore_delay_ms":       &c.RestoreDelayMillis,
		"retry_delay_ms":         &c.RetryDelayMillis,
		"tick_rate":              &c.TickRate,
		"arrival_retries":        &c.ArrivalRetries,
		"arrival_timeout_ms":     &c.ArrivalTimeoutMillis,
	}
	bools := map[string]*bool{
		"free_for_all":    &c.FreeForAll,
		"assign_in_order": &c.AssignInOrder,
		"full_team_bonus": &c.Bonus.FullTeamBonus,
	}

	for key, raw := range env {
		name, ok := strings.CutPrefix(strings.ToLower(key), EnvPrefix)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if p, ok := ints[name]; ok {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, raw)
			}
			*p = v
			continue
		}
		if p, ok := bools[name]; ok {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, raw)
			}
			*p = v
			continue
		}
		switch name {
		case "survivor_multiplier":
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, raw)
			}
			c.Bonus.SurvivorMultiplier = v
		case "progression":
			var p domain.Progression
			for _, seg := range strings.Split(raw, ",") {
				if seg = strings.TrimSpace(seg); seg != "" {
					p = append(p, seg)
				}
			}
			c.Progression = p
		}
	}
	return nil
}

// EffectivePlayersPerTeam is 1 in free-for-all mode.
func (c *RaceConfig) EffectivePlayersPerTeam() int {
	if c.FreeForAll {
		return 1
	}
	return c.PlayersPerTeam
}

// Scoring returns the scoring inputs for a new match.
func (c *RaceConfig) Scoring() domain.ScoringConfig {
	return domain.ScoringConfig{Points: c.MapTiers, Bonus: c.Bonus}
}

func (c *RaceConfig) RoundDuration() time.Duration {
	return time.Duration(c.RoundDurationSeconds) * time.Second
}

func (c *RaceConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMillis) * time.Millisecond
}

func (c *RaceConfig) RestoreDelay() time.Duration {
	return time.Duration(c.RestoreDelayMillis) * time.Millisecond
}

func (c *RaceConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

func (c *RaceConfig) ArrivalTimeout() time.Duration {
	return time.Duration(c.ArrivalTimeoutMillis) * time.Millisecond
}

// EnvFromOS collects peakrace_* keys from the process environment.
func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(strings.ToLower(k), EnvPrefix) {
			env[k] = v
		}
	}
	return env
}
