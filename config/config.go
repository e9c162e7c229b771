// Package config holds the koanf-tagged configuration structs loaded from
// config.hcl (or GOGPS_-prefixed environment variables) and the CLI flags
// that override them.
package config

// RadioConf describes the IQ source: a file, a locally attached RTL-SDR
// tuner, or a remote rtl_tcp server.
type RadioConf struct {
	Driver      string  `koanf:"driver"` // "file", "rtlsdr", "rtltcp"
	Path        string  `koanf:"path"`
	Address     string  `koanf:"address"`
	DeviceIndex int     `koanf:"device_index"`
	Gain        int     `koanf:"gain"`
	Frequency   float64 `koanf:"frequency"`
	SampleRate  float64 `koanf:"sample_rate"`
	SampleType  string  `koanf:"sample_type"` // i8, u8, 2xi16, 2xf16, 2xf32
	BiasTee     bool    `koanf:"bias_tee"`
}

// AGCConf configures the sample conditioner's amplitude normalization
// stage, built on libsathelper's AGC.
type AGCConf struct {
	Rate      float32 `koanf:"rate"`
	Reference float32 `koanf:"reference"`
	Gain      float32 `koanf:"gain"`
	MaxGain   float32 `koanf:"max_gain"`
}

// ResampleConf configures the polyphase resampler used when the input
// sample rate differs from the canonical acquisition/tracking rate.
type ResampleConf struct {
	LowPassTransitionWidth float64 `koanf:"lowpass_transition_width"`
	TargetSampleRate       float64 `koanf:"target_sample_rate"`
}

// AcquisitionConf tunes the 2-D code/Doppler search.
type AcquisitionConf struct {
	PRNs              []int   `koanf:"prns"`
	DopplerSpreadHz   float64 `koanf:"doppler_spread_hz"`
	DopplerStepHz     float64 `koanf:"doppler_step_hz"`
	CoherentMsec      int     `koanf:"coherent_msec"`
	NonCoherentSums   int     `koanf:"noncoherent_sums"`
	DetectionThreshDb float64 `koanf:"detection_threshold_db"`
}

// TrackingConf tunes the DLL/PLL/FLL loop bandwidths and lock thresholds.
type TrackingConf struct {
	CodeSpacingChips     float64 `koanf:"code_spacing_chips"`
	DLLBandwidthHz       float64 `koanf:"dll_bandwidth_hz"`
	PLLBandwidthWideHz   float64 `koanf:"pll_bandwidth_wide_hz"`
	PLLBandwidthNarrowHz float64 `koanf:"pll_bandwidth_narrow_hz"`
	FLLBandwidthHz       float64 `koanf:"fll_bandwidth_hz"`
	CarrierLockThresh    float64 `koanf:"carrier_lock_threshold"`
	CN0LockedThreshDbHz  float64 `koanf:"cn0_locked_threshold_db_hz"`
	CN0LostThreshDbHz    float64 `koanf:"cn0_lost_threshold_db_hz"`
	LossTimeoutSec       float64 `koanf:"loss_timeout_sec"`
}

// NavConf tunes the bit/frame synchronizer.
type NavConf struct {
	BitSyncConfidence float64 `koanf:"bit_sync_confidence"`
	BitSyncWindowSec  float64 `koanf:"bit_sync_window_sec"`
}

// MeasurementConf tunes the measurement builder's solution-epoch cadence.
type MeasurementConf struct {
	EpochHz                float64 `koanf:"epoch_hz"`
	NominalPropagationMsec float64 `koanf:"nominal_propagation_msec"`
}

// DiagnosticsConf configures the out-of-scope diagnostic collaborator.
type DiagnosticsConf struct {
	OutputDir    string  `koanf:"output_dir"`
	IntervalSec  float64 `koanf:"interval_sec"`
	EnableTUI    bool    `koanf:"enable_tui"`
	EnablePlots  bool    `koanf:"enable_plots"`
}
