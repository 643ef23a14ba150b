package live

import "time"

// MonitorConfig configures the audio level monitor.
type MonitorConfig struct {
	// StaticThreshold is the baseline speech threshold before the
	// sensitivity scale and ambient calibration are applied.
	// Range: 0.0 to 1.0. Default: 0.03.
	StaticThreshold float64 `json:"static_threshold"`

	// Sensitivity scales both the speech threshold and the interrupt
	// trigger. 1 is least sensitive, 10 most. Default: 5.
	Sensitivity int `json:"sensitivity"`

	// CalibrationSamples is how many initial samples are averaged to
	// estimate the ambient noise floor. Default: 20.
	CalibrationSamples int `json:"calibration_samples"`

	// QuietPeriod is how long the level must stay below the threshold
	// while recording before the silence signal fires. Default: 700ms.
	QuietPeriod time.Duration `json:"quiet_period"`
}

// DefaultMonitorConfig returns a MonitorConfig with sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StaticThreshold:    0.03,
		Sensitivity:        5,
		CalibrationSamples: 20,
		QuietPeriod:        700 * time.Millisecond,
	}
}

// RecorderConfig configures the capture recorder.
type RecorderConfig struct {
	// MaxDuration force-stops a recording that runs too long. Default: 20s.
	MaxDuration time.Duration `json:"max_duration"`

	// MinBytes is the smallest blob worth uploading. Captures below it
	// are dropped as noise. Default: 1000.
	MinBytes int `json:"min_bytes"`
}

// DefaultRecorderConfig returns a RecorderConfig with sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MaxDuration: 20 * time.Second,
		MinBytes:    1000,
	}
}

// ControllerConfig configures the conversation state machine.
type ControllerConfig struct {
	// Language is sent with every transcription request. Default: "es".
	Language string `json:"language"`

	// RestartDelay is the pause between a terminal event and the next
	// listening window. Default: 500ms.
	RestartDelay time.Duration `json:"restart_delay"`

	// PollInterval is how often the server outbox is polled. Default: 1s.
	PollInterval time.Duration `json:"poll_interval"`

	// WatchdogInterval is how often the stall check runs. Default: 3s.
	WatchdogInterval time.Duration `json:"watchdog_interval"`

	// StallWindow is how long the controller may sit idle with no voice
	// activity before the watchdog restarts listening. Default: 4s.
	StallWindow time.Duration `json:"stall_window"`
}

// DefaultControllerConfig returns a ControllerConfig with sensible defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Language:         "es",
		RestartDelay:     500 * time.Millisecond,
		PollInterval:     time.Second,
		WatchdogInterval: 3 * time.Second,
		StallWindow:      4 * time.Second,
	}
}
