package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"drug-matcher/internal/matching/model"
	"drug-matcher/internal/matching/service"
)

type Config struct {
	Host         string
	Port         int
	AllowOrigins []string
	LogLevel     string
	LogFormat    string // console | json
	MaxUploadMB  int
	LogFile      string // "off" disables the file sink
	DBPath       string // "off" disables persistence
	LexiconFile  string
	Matching     service.Config
}

// Load reads the environment. A matching setting that is present but cannot
// be parsed is reported as a *service.ConfigError; the returned Config then
// still carries defaults for it so a logger can be built before exiting.
// Range checks on the matching block are left to Matching.Validate.
func Load() (Config, error) {
	port, _ := strconv.Atoi(getenv("PORT", "8082"))
	mb, _ := strconv.Atoi(getenv("MAX_UPLOAD_MB", "256"))
	origins := strings.Split(getenv("ALLOW_ORIGINS", "*"), ",")
	matching, err := loadMatching()
	return Config{
		Host:         getenv("HOST", "127.0.0.1"),
		Port:         port,
		AllowOrigins: origins,
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "console"),
		MaxUploadMB:  mb,
		LogFile:      optional("LOG_FILE", "logs/drug-matcher.log"),
		DBPath:       optional("DB_PATH", "data/drug-matcher.db"),
		LexiconFile:  os.Getenv("LEXICON_FILE"),
		Matching:     matching,
	}, err
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func loadMatching() (service.Config, error) {
	m := service.DefaultConfig()
	var problems []string
	num := func(key string, dst *float64) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %q is not a number", key, v))
			return
		}
		*dst = f
	}
	num("MATCH_THRESHOLD", &m.Threshold)
	num("PRICE_TOLERANCE_PCT", &m.PriceTolerancePct)
	num("PRICE_MAX_RATIO", &m.MaxPriceRatio)
	if v := os.Getenv("MATCH_WEIGHTS"); strings.TrimSpace(v) != "" {
		if w, err := ParseWeights(v); err != nil {
			problems = append(problems, "MATCH_WEIGHTS: "+err.Error())
		} else {
			m.Weights = w
		}
	}
	if v := os.Getenv("CONFIDENCE_BREAKPOINTS"); strings.TrimSpace(v) != "" {
		if bp, err := ParseBreakpoints(v); err != nil {
			problems = append(problems, "CONFIDENCE_BREAKPOINTS: "+err.Error())
		} else {
			m.Breakpoints = bp
		}
	}
	if v := os.Getenv("MATCH_WEIGHTING"); v != "" {
		m.Weighting = v
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MATCH_WORKERS: %q is not an integer", v))
		} else {
			m.Workers = n
		}
	}
	if len(problems) > 0 {
		return m, &service.ConfigError{Problems: problems}
	}
	return m, nil
}

// ParseWeights reads "brand,generic,strength,dosage,price". Whether they sum
// to 1 is checked by service.Config.Validate.
func ParseWeights(s string) (model.Weights, error) {
	v, err := parseFloats(s, 5)
	if err != nil {
		return model.Weights{}, fmt.Errorf("weights: %w", err)
	}
	return model.Weights{Brand: v[0], Generic: v[1], Strength: v[2], Dosage: v[3], Price: v[4]}, nil
}

// ParseBreakpoints reads five floats for the default confidence labels, from
// "Very High" down to "Very Low".
func ParseBreakpoints(s string) ([]model.Breakpoint, error) {
	def := service.DefaultBreakpoints()
	v, err := parseFloats(s, len(def))
	if err != nil {
		return nil, fmt.Errorf("breakpoints: %w", err)
	}
	for i := range def {
		def[i].Min = v[i]
	}
	return def, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i+1, err)
		}
		out[i] = f
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// optional is getenv for settings that can be switched off with "off".
func optional(k, def string) string {
	v := getenv(k, def)
	if v == "off" {
		return ""
	}
	return v
}
