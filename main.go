package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openskynav/gogps/acquisition"
	"github.com/openskynav/gogps/conditioner"
	"github.com/openskynav/gogps/config"
	"github.com/openskynav/gogps/constants"
	"github.com/openskynav/gogps/diagnostics"
	"github.com/openskynav/gogps/measurement"
	"github.com/openskynav/gogps/replica"
	"github.com/openskynav/gogps/sdrio"
	"github.com/openskynav/gogps/solver"
	"github.com/openskynav/gogps/tracking"
	"github.com/openskynav/gogps/tui"
)

var cli struct {
	Verbose bool `help:"Prints debug output by default"`
	Profile bool `help:"Output a pprof profile"`

	Probe struct {
	} `cmd:"" help:"List the available radios and SoapySDR configuration"`

	Run struct {
		File       string  `short:"f" help:"Read IQ from file (mutually exclusive with -d/--host)"`
		Device     bool    `short:"d" help:"Read IQ from locally attached RTL-SDR tuner"`
		Host       string  `help:"Connect to remote rtl_tcp server, host[:port]"`
		Type       string  `short:"t" help:"Input sample encoding: i8, u8, 2xi16, 2xf16, 2xf32"`
		SampleRate float64 `short:"s" help:"Override input sample rate"`
		PRNs       string  `short:"p" help:"Restrict acquisition to these PRNs (comma-separated, default 1..32)"`
		OutDir     string  `short:"o" help:"Diagnostic output directory"`
	} `cmd:"" default:"1" help:"Run the receiver"`
}

const (
	exitOK          = 0
	exitInternal    = 1
	exitUsage       = 2
	exitIOError     = 3
	exitDeviceError = 4
)

var koanfConf = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/gogps/config.hcl", "~/.config/gogps/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("found config file: %s", path)
			return path
		}
	}
	log.Info("config file not found, using defaults/environment")
	return ""
}

func loadConfig() {
	if err := koanfConf.Load(file.Provider(getConfigPath()), hcl.Parser(true)); err != nil {
		log.Warnf("could not read config file: %v", err)
		koanfConf.Load(env.Provider("", env.Opt{
			Prefix: "GOGPS_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "GOGPS_"))
				return strings.Replace(key, "_", ".", 1), v
			},
		}), nil)
	}
}

func main() {
	log.Info("starting gogps")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	if level := os.Getenv("GOGPS_LOG_LEVEL"); level != "" {
		applyLogLevel(level)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			log.Fatalf("could not create profile: %v", err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	loadConfig()

	switch flags.Command() {
	case "probe":
		sdrio.LogAllDevices()
		os.Exit(exitOK)

	case "run":
		os.Exit(runReceiver())

	default:
		log.Error("command not recognized")
		os.Exit(exitUsage)
	}
}

func applyLogLevel(v string) {
	switch strings.ToLower(v) {
	case "debug", "trace":
		log.SetLevel(log.DebugLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// runReceiver wires Conditioner -> Acquisition -> per-PRN Channels ->
// Measurement Builder -> Solver -> Diagnostics, and returns the process
// exit code.
func runReceiver() int {
	radioConf := config.RadioConf{
		Driver:      koanfConf.String("radio.driver"),
		Path:        koanfConf.String("radio.path"),
		Address:     koanfConf.String("radio.address"),
		DeviceIndex: koanfConf.Int("radio.device_index"),
		Gain:        koanfConf.Int("radio.gain"),
		Frequency:   koanfConf.Float64("radio.frequency"),
		SampleRate:  koanfConf.Float64("radio.sample_rate"),
		SampleType:  koanfConf.String("radio.sample_type"),
		BiasTee:     koanfConf.Bool("radio.bias_tee"),
	}
	applyRunFlags(&radioConf)

	if radioConf.Frequency == 0 {
		radioConf.Frequency = constants.L1Hz
	}
	if radioConf.SampleRate == 0 {
		radioConf.SampleRate = constants.DefaultSampleRateHz
	}
	if radioConf.SampleType == "" {
		radioConf.SampleType = "2xi16"
	}

	agcConf := config.AGCConf{
		Rate:      float32(koanfConf.Float64("agc.rate")),
		Reference: float32(koanfConf.Float64("agc.reference")),
		Gain:      float32(koanfConf.Float64("agc.gain")),
		MaxGain:   float32(koanfConf.Float64("agc.max_gain")),
	}
	if agcConf.Reference == 0 {
		agcConf.Reference = 1.0
	}
	if agcConf.MaxGain == 0 {
		agcConf.MaxGain = 1e6
	}

	resampleConf := config.ResampleConf{
		LowPassTransitionWidth: koanfConf.Float64("resample.lowpass_transition_width"),
		TargetSampleRate:       koanfConf.Float64("resample.target_sample_rate"),
	}
	if resampleConf.TargetSampleRate == 0 {
		resampleConf.TargetSampleRate = constants.DefaultSampleRateHz
	}
	if resampleConf.LowPassTransitionWidth == 0 {
		resampleConf.LowPassTransitionWidth = 100e3
	}

	acqConf := config.AcquisitionConf{
		PRNs:              parsePRNList(cli.Run.PRNs, koanfConf.Ints("acquisition.prns")),
		DopplerSpreadHz:   koanfConf.Float64("acquisition.doppler_spread_hz"),
		DopplerStepHz:     koanfConf.Float64("acquisition.doppler_step_hz"),
		CoherentMsec:      koanfConf.Int("acquisition.coherent_msec"),
		NonCoherentSums:   koanfConf.Int("acquisition.noncoherent_sums"),
		DetectionThreshDb: koanfConf.Float64("acquisition.detection_threshold_db"),
	}
	if len(acqConf.PRNs) == 0 {
		acqConf.PRNs = defaultPRNs()
	}
	if acqConf.CoherentMsec == 0 {
		acqConf.CoherentMsec = 1
	}
	if acqConf.NonCoherentSums == 0 {
		acqConf.NonCoherentSums = 10
	}
	if acqConf.DopplerStepHz == 0 {
		acqConf.DopplerStepHz = 50
	}

	trackConf := config.TrackingConf{
		CodeSpacingChips:     koanfConf.Float64("tracking.code_spacing_chips"),
		DLLBandwidthHz:       koanfConf.Float64("tracking.dll_bandwidth_hz"),
		PLLBandwidthWideHz:   koanfConf.Float64("tracking.pll_bandwidth_wide_hz"),
		PLLBandwidthNarrowHz: koanfConf.Float64("tracking.pll_bandwidth_narrow_hz"),
		FLLBandwidthHz:       koanfConf.Float64("tracking.fll_bandwidth_hz"),
		CarrierLockThresh:    koanfConf.Float64("tracking.carrier_lock_threshold"),
		CN0LockedThreshDbHz:  koanfConf.Float64("tracking.cn0_locked_threshold_db_hz"),
		CN0LostThreshDbHz:    koanfConf.Float64("tracking.cn0_lost_threshold_db_hz"),
		LossTimeoutSec:       koanfConf.Float64("tracking.loss_timeout_sec"),
	}

	navConf := config.NavConf{
		BitSyncConfidence: koanfConf.Float64("nav.bit_sync_confidence"),
		BitSyncWindowSec:  koanfConf.Float64("nav.bit_sync_window_sec"),
	}

	measConf := config.MeasurementConf{
		EpochHz:                koanfConf.Float64("measurement.epoch_hz"),
		NominalPropagationMsec: koanfConf.Float64("measurement.nominal_propagation_msec"),
	}
	if measConf.EpochHz == 0 {
		measConf.EpochHz = 1
	}

	diagConf := config.DiagnosticsConf{
		OutputDir:   cli.Run.OutDir,
		IntervalSec: koanfConf.Float64("diagnostics.interval_sec"),
		EnableTUI:   koanfConf.Bool("diagnostics.enable_tui"),
		EnablePlots: koanfConf.Bool("diagnostics.enable_plots"),
	}
	if diagConf.OutputDir == "" {
		diagConf.OutputDir = koanfConf.String("diagnostics.output_dir")
	}
	if diagConf.IntervalSec == 0 {
		diagConf.IntervalSec = 2.0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closer, err := openSource(&radioConf)
	if err != nil {
		log.Errorf("could not open IQ source: %v", err)
		if radioConf.Driver == "rtlsdr" {
			return exitDeviceError
		}
		return exitIOError
	}
	defer closer()

	cond, err := conditioner.New(radioConf, agcConf, resampleConf)
	if err != nil {
		log.Errorf("could not build conditioner: %v", err)
		return exitUsage
	}

	bank, err := replica.NewBank(cond.SampleRate(), acqConf.PRNs)
	if err != nil {
		log.Errorf("could not build replica bank: %v", err)
		return exitInternal
	}

	diagReporter, err := diagnostics.New(diagConf)
	if err != nil {
		log.Warnf("diagnostics disabled: %v", err)
	}

	r := &receiver{
		acq:       acquisition.New(bank, acqConf),
		acqConf:   acqConf,
		bank:      bank,
		trackConf: trackConf,
		navConf:   navConf,
		measBuilder: measurement.NewBuilder(measurement.MeasurementConf{
			EpochHz:                measConf.EpochHz,
			NominalPropagationMsec: measConf.NominalPropagationMsec,
		}),
		epochIntervalTicks: epochIntervalTicks(measConf.EpochHz),
		solver:             solver.NewWLS([3]float64{-3961905, 3348994, 3698207}),
		diag:               diagReporter,
		diagInterval:       time.Duration(diagConf.IntervalSec * float64(time.Second)),
		channels:           make(map[int]*tracking.Channel),
		lastTicks:          make(map[int]tracking.Tick),
	}

	var dash *tui.Dashboard
	if diagConf.EnableTUI {
		dash = tui.NewDashboard(diagConf)
		go func() {
			if err := dash.Run(r.snapshot, int(diagConf.IntervalSec*1000)); err != nil {
				log.Warnf("tui exited: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			dash.Stop()
		}()
	}

	blocks := cond.Run(ctx, src)
	r.run(ctx, blocks)

	log.Info("gogps shutting down cleanly")
	return exitOK
}

func applyRunFlags(conf *config.RadioConf) {
	switch {
	case cli.Run.File != "":
		conf.Driver = "file"
		conf.Path = cli.Run.File
	case cli.Run.Device:
		conf.Driver = "rtlsdr"
	case cli.Run.Host != "":
		conf.Driver = "rtltcp"
		conf.Address = cli.Run.Host
	}
	if cli.Run.Type != "" {
		conf.SampleType = cli.Run.Type
	}
	if cli.Run.SampleRate != 0 {
		conf.SampleRate = cli.Run.SampleRate
	}
}

func openSource(conf *config.RadioConf) (conditioner.ByteSource, func(), error) {
	switch conf.Driver {
	case "file", "":
		s, err := sdrio.OpenFile(conf.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "rtlsdr":
		conf.SampleType = "2xf32" // DeviceSource always re-serializes as 2xf32
		s, err := sdrio.OpenDevice(*conf)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "rtltcp":
		s, err := sdrio.DialRtlTcp(conf.Address, *conf)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown radio driver %q", conf.Driver)
	}
}

func parsePRNList(flag string, fromConf []int) []int {
	if flag == "" {
		return fromConf
	}
	var out []int
	for _, s := range strings.Split(flag, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			log.Warnf("ignoring invalid PRN %q", s)
			continue
		}
		out = append(out, n)
	}
	return out
}

// epochIntervalTicks converts a solver epoch rate into a count of 1 ms
// IqBlock ticks: each conditioned block covers exactly 1 ms of canonical
// signal time regardless of the source sample rate, so a 1 Hz epoch rate
// means one Build/Solve every 1000 ticks.
func epochIntervalTicks(epochHz float64) uint64 {
	if epochHz <= 0 {
		epochHz = 1
	}
	n := int(math.Round(1000.0 / epochHz))
	if n < 1 {
		n = 1
	}
	return uint64(n)
}

func defaultPRNs() []int {
	out := make([]int, 0, constants.MaxPRN)
	for p := constants.MinPRN; p <= constants.MaxPRN; p++ {
		out = append(out, p)
	}
	return out
}

// receiver holds the control-thread state: the pending acquisition
// window, the live per-PRN channels, and the measurement/solver/
// diagnostics collaborators each tick feeds.
type receiver struct {
	acq       *acquisition.Engine
	acqConf   config.AcquisitionConf
	bank      *replica.Bank
	trackConf config.TrackingConf
	navConf   config.NavConf

	measBuilder *measurement.Builder
	solver      solver.Solver
	lastFix     solver.Fix

	// epochIntervalTicks and epochTicks gate Build/Solve to run once per
	// solver epoch (measurement.MeasurementConf.EpochHz) rather than on
	// every 1 ms tick; the receiver clock model itself still advances
	// every tick via AdvanceClock.
	epochIntervalTicks uint64
	epochTicks         uint64

	diag         *diagnostics.Reporter
	diagInterval time.Duration
	lastDiag     time.Time

	// mu guards everything below: channels, lastTicks, lastFix, and
	// acqSurfaceDb are written from the control thread (run/acquire/tick)
	// but read from the TUI's separate refresh goroutine via snapshot()
	//.
	mu            sync.Mutex
	channels      map[int]*tracking.Channel
	lastTicks     map[int]tracking.Tick
	acqSurfaceDb  []float64
}

// run is the control thread's main loop: an acquisition window is
// accumulated once at startup, then every subsequent IqBlock is fanned
// out to the active channels.
func (r *receiver) run(ctx context.Context, blocks <-chan conditioner.IqBlock) {
	var window []complex64
	acquired := false
	windowLen := r.bank.N() * r.acqConf.CoherentMsec * r.acqConf.NonCoherentSums

	for {
		select {
		case <-ctx.Done():
			return
		case blk, ok := <-blocks:
			if !ok {
				return
			}

			if !acquired {
				window = append(window, blk.Samples...)
				if len(window) < windowLen {
					continue
				}
				r.acquire(window[:windowLen], r.bank.SampleRate())
				acquired = true
				window = nil
				continue
			}

			r.tick(blk)
		}
	}
}

func (r *receiver) acquire(window []complex64, fs float64) {
	results := r.acq.SearchAll(context.Background(), window, fs)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range results {
		if res == nil {
			continue
		}
		rep, ok := r.bank.Get(res.PRN)
		if !ok {
			continue
		}
		log.Infof("prn %d acquired: doppler=%.1fHz phase=%.3f snr=%.1fdB", res.PRN, res.DopplerHz, res.PhaseOffset, res.SNRdB)
		codePhaseChips := res.PhaseOffset / float64(rep.N) * constants.CodeLengthChips
		r.channels[res.PRN] = tracking.New(res.PRN, rep, fs, res.DopplerHz, codePhaseChips, r.trackConf, r.navConf)
		if len(res.SurfaceDb) > 0 {
			r.acqSurfaceDb = res.SurfaceDb
		}
	}
	if len(r.channels) == 0 {
		log.Warn("no satellites acquired")
	}
}

// tick runs every channel's ProcessBlock outside the receiver's lock (the
// hot path), then applies map mutations and telemetry updates under it —
// snapshot() never blocks on a correlation update, only on a cheap map
// copy.
func (r *receiver) tick(blk conditioner.IqBlock) {
	r.mu.Lock()
	active := make([]*tracking.Channel, 0, len(r.channels))
	prns := make([]int, 0, len(r.channels))
	for prn, ch := range r.channels {
		active = append(active, ch)
		prns = append(prns, prn)
	}
	r.mu.Unlock()

	var inputs []measurement.ChannelInput
	ticks := make(map[int]tracking.Tick, len(active))
	var lost []int

	for i, ch := range active {
		prn := prns[i]
		t := ch.ProcessBlock(blk.Samples)
		ticks[prn] = t

		if t.State == tracking.StateLost {
			log.Warnf("prn %d: channel lost, removing", prn)
			lost = append(lost, prn)
			continue
		}

		if t.State >= tracking.StateEphemerisValid {
			inputs = append(inputs, measurement.ChannelInput{
				PRN:            prn,
				State:          t.State,
				CodePhaseChips: t.CodePhase,
				DopplerHz:      t.DopplerHz,
				CN0:            t.CN0,
				Ephemeris:      ch.Decoder.Ephemeris(),
				BitsSinceHOW:   ch.Decoder.BitsSinceSubframe(),
				CodeEpochsMs:   ch.Decoder.TickInBit(),
			})
		}
	}

	r.measBuilder.AdvanceClock(time.Millisecond)

	r.epochTicks++
	runEpoch := r.epochTicks >= r.epochIntervalTicks
	if runEpoch {
		r.epochTicks = 0
	}

	var fix solver.Fix
	var fixOK bool
	if runEpoch && len(inputs) >= 4 {
		meas := r.measBuilder.Build(inputs)
		f, err := r.solver.Solve(context.Background(), meas[0].ReceiveTOW, meas)
		if err != nil {
			if !errors.Is(err, solver.ErrInsufficientSatellites) {
				log.Warnf("solver error: %v", err)
			}
		} else {
			log.Infof("fix: ecef=(%.1f,%.1f,%.1f) bias=%.2fm sats=%d", f.ECEF[0], f.ECEF[1], f.ECEF[2], f.ClockBiasM, f.Satellites)
			fix, fixOK = f, true
		}
	}

	r.mu.Lock()
	for prn, t := range ticks {
		r.lastTicks[prn] = t
	}
	for _, prn := range lost {
		delete(r.channels, prn)
		delete(r.lastTicks, prn)
	}
	if fixOK {
		r.lastFix = fix
	}
	r.mu.Unlock()

	r.maybeEmitDiagnostics(active, prns)
}

func (r *receiver) maybeEmitDiagnostics(active []*tracking.Channel, prns []int) {
	if r.diag == nil {
		return
	}
	if time.Since(r.lastDiag) < r.diagInterval {
		return
	}
	r.lastDiag = time.Now()

	r.mu.Lock()
	surface := r.acqSurfaceDb
	r.mu.Unlock()

	traces := make([]diagnostics.ChannelTrace, 0, len(active))
	for i, ch := range active {
		iq, codeErr, carrierErr := ch.Trace()
		traces = append(traces, diagnostics.ChannelTrace{
			PRN:             prns[i],
			IQ:              iq,
			CodeErrTrace:    codeErr,
			CarrierErrTrace: carrierErr,
		})
	}
	r.diag.Emit(surface, traces)
}

// snapshot is the TUI's one-way diagnostic read of receiver state, called
// from the dashboard's own refresh goroutine.
func (r *receiver) snapshot() tui.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]tui.ChannelView, 0, len(r.channels))
	for prn, ch := range r.channels {
		t, ok := r.lastTicks[prn]
		v := tui.ChannelView{PRN: prn, State: ch.State().String()}
		if ok {
			v.DopplerHz = t.DopplerHz
			v.CodePhaseChips = t.CodePhase
			v.CN0 = t.CN0
			v.CarrierLock = t.CarrierLock
		}
		views = append(views, v)
	}

	fv := tui.FixView{}
	if r.lastFix.Satellites > 0 {
		fv = tui.FixView{Valid: true, ReceiveTOW: r.lastFix.ReceiveTOW, ECEF: r.lastFix.ECEF, ClockBiasM: r.lastFix.ClockBiasM, Satellites: r.lastFix.Satellites}
	}

	return tui.Snapshot{Channels: views, Fix: fv, CorrSurfaceDb: r.acqSurfaceDb}
}
