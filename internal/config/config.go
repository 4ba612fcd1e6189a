// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "bandwatch"
	ConfigType    = "yaml"
	DefaultConfig = `# Bandwatch Configuration

# Audio device settings
device_index: -1        # -1 for default capture device
sample_rate: 44100      # Audio sample rate in Hz
block_size: 1024        # Samples per hardware read
window_size: 2048       # Samples per analysis window (power of 2)
read_timeout_ms: 500    # Max wait for one hardware block in milliseconds

# Target band
target_freq_min: 17700  # Lower edge of the target band in Hz
target_freq_max: 18300  # Upper edge of the target band in Hz

# Detection thresholds
raw_threshold: 1.0      # Gate 1: minimum raw peak magnitude before anything is reported
scale_factor: 5000      # Multiplier applied to the raw peak before gate 2
scaled_threshold: 20000 # Gate 2: minimum scaled magnitude for an actionable detection

# Delivery
endpoints:              # Candidate collectors, probed in order
  - "http://192.168.1.10:3000"
  - "http://192.168.1.11:3000"
send_timeout_ms: 3000   # Timeout for one detection POST
probe_interval_s: 30    # Minimum seconds between reachability probes
reconnect_cmd: ""       # Optional command run (fire-and-forget) when the link drops
link_interface: ""      # Network interface to watch ("" = assume link is up)

# Local queue
queue_file: "detections.csv" # Store-and-forward log path
max_queue_entries: 100       # Oldest entries are evicted beyond this

# Collector service (bandwatch collect)
collector_port: 3000    # Listen port
collector_log_dir: "logs" # Directory for request/detection logs

# Output
debug: false            # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex   int     `mapstructure:"device_index"`
	SampleRate    float64 `mapstructure:"sample_rate"`
	BlockSize     int     `mapstructure:"block_size"`
	WindowSize    int     `mapstructure:"window_size"`
	ReadTimeoutMS int     `mapstructure:"read_timeout_ms"`

	// Target band
	TargetFreqMin float64 `mapstructure:"target_freq_min"`
	TargetFreqMax float64 `mapstructure:"target_freq_max"`

	// Detection thresholds
	RawThreshold    float64 `mapstructure:"raw_threshold"`
	ScaleFactor     float64 `mapstructure:"scale_factor"`
	ScaledThreshold int     `mapstructure:"scaled_threshold"`

	// Delivery
	Endpoints      []string `mapstructure:"endpoints"`
	SendTimeoutMS  int      `mapstructure:"send_timeout_ms"`
	ProbeIntervalS int      `mapstructure:"probe_interval_s"`
	ReconnectCmd   string   `mapstructure:"reconnect_cmd"`
	LinkInterface  string   `mapstructure:"link_interface"`

	// Local queue
	QueueFile       string `mapstructure:"queue_file"`
	MaxQueueEntries int    `mapstructure:"max_queue_entries"`

	// Collector service
	CollectorPort   int    `mapstructure:"collector_port"`
	CollectorLogDir string `mapstructure:"collector_log_dir"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/bandwatch/
func Init() error {
	// Set defaults
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 44100)
	viper.SetDefault("block_size", 1024)
	viper.SetDefault("window_size", 2048)
	viper.SetDefault("read_timeout_ms", 500)
	viper.SetDefault("target_freq_min", 17700)
	viper.SetDefault("target_freq_max", 18300)
	viper.SetDefault("raw_threshold", 1.0)
	viper.SetDefault("scale_factor", 5000)
	viper.SetDefault("scaled_threshold", 20000)
	viper.SetDefault("endpoints", []string{"http://192.168.1.10:3000", "http://192.168.1.11:3000"})
	viper.SetDefault("send_timeout_ms", 3000)
	viper.SetDefault("probe_interval_s", 30)
	viper.SetDefault("reconnect_cmd", "")
	viper.SetDefault("link_interface", "")
	viper.SetDefault("queue_file", "detections.csv")
	viper.SetDefault("max_queue_entries", 100)
	viper.SetDefault("collector_port", 3000)
	viper.SetDefault("collector_log_dir", "logs")
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/bandwatch/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.BlockSize < 64 || s.BlockSize > 8192 {
		errs = append(errs, fmt.Errorf("block_size must be between 64 and 8192, got %d", s.BlockSize))
	}
	if s.BlockSize&(s.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("block_size should be a power of 2, got %d", s.BlockSize))
	}
	if s.WindowSize < 256 || s.WindowSize > 16384 {
		errs = append(errs, fmt.Errorf("window_size must be between 256 and 16384, got %d", s.WindowSize))
	}
	if s.WindowSize&(s.WindowSize-1) != 0 {
		errs = append(errs, fmt.Errorf("window_size should be a power of 2, got %d", s.WindowSize))
	}
	if s.BlockSize > 0 && s.WindowSize%s.BlockSize != 0 {
		errs = append(errs, fmt.Errorf("window_size must be a multiple of block_size, got %d/%d", s.WindowSize, s.BlockSize))
	}
	if s.ReadTimeoutMS < 10 || s.ReadTimeoutMS > 10000 {
		errs = append(errs, fmt.Errorf("read_timeout_ms must be between 10 and 10000, got %d", s.ReadTimeoutMS))
	}

	// Target band
	if s.TargetFreqMin <= 0 {
		errs = append(errs, fmt.Errorf("target_freq_min must be positive, got %v", s.TargetFreqMin))
	}
	if s.TargetFreqMax <= s.TargetFreqMin {
		errs = append(errs, fmt.Errorf("target_freq_max (%v Hz) must exceed target_freq_min (%v Hz)", s.TargetFreqMax, s.TargetFreqMin))
	}

	// Nyquist check: the whole band must sit below half the sample rate.
	// The detector re-checks this per cycle; failing here gives an early,
	// readable diagnostic instead of a silent no-detection loop.
	if s.SampleRate > 0 && s.WindowSize > 0 {
		maxBin := int(math.Round(s.TargetFreqMax * float64(s.WindowSize) / s.SampleRate))
		if maxBin >= s.WindowSize/2 {
			errs = append(errs, fmt.Errorf("target_freq_max (%v Hz) must be below the Nyquist frequency (%v Hz)", s.TargetFreqMax, s.SampleRate/2))
		}
	}

	// Detection thresholds
	if s.RawThreshold < 0 {
		errs = append(errs, fmt.Errorf("raw_threshold must be non-negative, got %v", s.RawThreshold))
	}
	if s.ScaleFactor <= 0 {
		errs = append(errs, fmt.Errorf("scale_factor must be positive, got %v", s.ScaleFactor))
	}
	if s.ScaledThreshold < 0 {
		errs = append(errs, fmt.Errorf("scaled_threshold must be non-negative, got %d", s.ScaledThreshold))
	}

	// Delivery
	if len(s.Endpoints) == 0 {
		errs = append(errs, errors.New("endpoints must list at least one collector URL"))
	}
	if s.SendTimeoutMS < 100 || s.SendTimeoutMS > 30000 {
		errs = append(errs, fmt.Errorf("send_timeout_ms must be between 100 and 30000, got %d", s.SendTimeoutMS))
	}
	if s.ProbeIntervalS < 1 || s.ProbeIntervalS > 3600 {
		errs = append(errs, fmt.Errorf("probe_interval_s must be between 1 and 3600, got %d", s.ProbeIntervalS))
	}

	// Local queue
	if s.MaxQueueEntries < 1 || s.MaxQueueEntries > 100000 {
		errs = append(errs, fmt.Errorf("max_queue_entries must be between 1 and 100000, got %d", s.MaxQueueEntries))
	}
	if s.QueueFile == "" {
		errs = append(errs, errors.New("queue_file must not be empty"))
	}

	// Collector service
	if s.CollectorPort < 1 || s.CollectorPort > 65535 {
		errs = append(errs, fmt.Errorf("collector_port must be between 1 and 65535, got %d", s.CollectorPort))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
