// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/bits"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	m "github.com/mkhts/gopvt"
	"github.com/mkhts/gopvt/internal/logging"
	"github.com/mkhts/gopvt/internal/observability"
	"github.com/mkhts/gopvt/internal/sim"
	"github.com/mkhts/gopvt/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs()
	if err != nil {
		m.PrintE(err)
		flag.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		m.PrintE(err)
		os.Exit(1)
	}
}

// Main application processing
func runApplication(args cmdOpt) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := "info"
	if m.DBG_ >= 1 {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Format: "text"})

	// Tracing
	tcfg := observability.TracingConfigFromEnv()
	if args.trace {
		tcfg.Enabled = true
	}
	shutdown, err := observability.InitTracing(ctx, tcfg, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	// Metrics and telemetry
	reg := prometheus.NewRegistry()
	collector, err := observability.NewPvtCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	hub := telemetry.NewHub(log)
	go hub.Run(ctx)
	startHTTP(ctx, args, collector, hub, log)

	// Ephemerides and simulated tracking channels
	ephs, start, err := loadEphemerides(args)
	if err != nil {
		return fmt.Errorf("failed to load ephemerides: %w", err)
	}
	store := sim.NewTable(ephs)

	opt := setPvtOpt(&args)
	scfg := sim.NewConfig(args.truth, start, opt)
	scfg.Faults = args.faults
	rcv := sim.NewReceiver(scfg, ephs)
	m.PrintD(1, "channels: %v\n", rcv.Svs())

	// Prepare output file
	pos, err := prepareOutput(args)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer closeOutput(pos)
	if !args.noPosHeader {
		printPosHeader(pos, os.Args[0], args)
	}

	mode := m.COLD_START
	if args.warm {
		mode = m.WARM_START
	}
	pvt, err := m.NewPvt(mode, store, rcv.Controls(), opt,
		m.WithLogger(log),
		m.WithMetrics(collector),
		m.WithTelemetry(hub),
		m.WithSvSelect(&posPrinter{w: pos}),
	)
	if err != nil {
		return fmt.Errorf("failed to create navigation loop: %w", err)
	}

	// Run until the epochs are exhausted or the process is interrupted
	in := rcv.Feed(ctx, args.epochs, args.pace)
	err = pvt.Run(ctx, in)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("navigation loop failed: %w", err)
	}

	nav := pvt.Nav()
	if nav.InitialConvergence {
		d := nav.Pos.ToENU(args.truth)
		m.PrintD(1, "error(enu): %.3f %.3f %.3f\n", d.E, d.N, d.U)
	}
	tics := pvt.Tics()
	m.PrintD(1, "tics: start=%d exec=%d stop=%d\n", tics.Start, tics.Exec, tics.Stop)

	return pvt.Save()
}

// Serve /metrics and /ws on their addresses. Both may share one address.
func startHTTP(ctx context.Context, args cmdOpt, collector *observability.PvtCollector, hub *telemetry.Hub, log logging.Logger) {
	muxes := map[string]*http.ServeMux{}
	mux := func(addr string) *http.ServeMux {
		if muxes[addr] == nil {
			muxes[addr] = http.NewServeMux()
		}
		return muxes[addr]
	}
	if args.metricsAddr != "" {
		mux(args.metricsAddr).Handle("/metrics", collector.Handler())
	}
	if args.wsAddr != "" {
		mux(args.wsAddr).HandleFunc("/ws", hub.ServeWS)
	}

	for addr, mx := range muxes {
		srv := &http.Server{Addr: addr, Handler: mx, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info(ctx, "http listening", logging.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "http server failed", logging.String("addr", srv.Addr), logging.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}
}

// Ephemerides from the nav file, or a synthetic constellation around the current time
func loadEphemerides(args cmdOpt) ([]m.Ephemeris, float64, error) {
	if args.navFn == "" {
		now := m.NewGTime(time.Now().UTC().Add(m.LS * time.Second))
		toe := math.Floor(now.Sec/7200) * 7200
		return sim.Constellation(now.Week, toe), toe + 600, nil
	}

	nav, err := readNav(args.navFn)
	if err != nil {
		return nil, 0, err
	}

	// Start 10 minutes after the earliest reference time in the file
	start := math.Inf(1)
	for _, list := range nav {
		for _, e := range list {
			start = math.Min(start, e.Toe+600)
		}
	}
	if math.IsInf(start, 1) {
		return nil, 0, fmt.Errorf("no GPS ephemeris in %s", args.navFn)
	}

	table := m.NewEphemerisTable()
	table.Load(nav, start)
	svs := table.Svs()
	ephs := make([]m.Ephemeris, 0, len(svs))
	table.Lock()
	for _, sv := range svs {
		ephs = append(ephs, table.Ephemeris(sv))
	}
	table.Unlock()
	return ephs, start, nil
}

// Prepare output file
func prepareOutput(args cmdOpt) (io.WriteCloser, error) {

	// Use stdout if no output file is specified
	if len(args.posFn) == 0 {
		return &nopCloser{os.Stdout}, nil
	}

	// Create output file
	posf, err := os.Create(args.posFn)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return posf, nil
}

// Close output file
func closeOutput(pos io.WriteCloser) {
	if pos != nil {
		pos.Close()
	}
}

// nopCloser - WriteCloser that ignores close operations
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// posPrinter writes one pos line per converged epoch
type posPrinter struct {
	w io.Writer
}

func (p *posPrinter) PublishSvSelect(s m.SvSelect) {
	if !s.Nav.Converged {
		return
	}
	printPos(p.w, s.Nav, s.Clock)
}

// Structure to hold command line argument information
type cmdOpt struct {
	navFn       string
	posFn       string
	truth       m.PosXYZ
	epochs      int
	warm        bool
	raim        bool
	pseudoCheck bool
	statePath   string
	metricsAddr string
	wsAddr      string
	trace       bool
	pace        time.Duration
	faults      map[int]float64
	noPosHeader bool
}

// Satellite pseudorange faults like "5:300,12:-150" [m]
type faultVar map[int]float64

func (f faultVar) String() string {
	var s []string
	for sv, v := range f {
		s = append(s, fmt.Sprintf("%d:%g", sv, v))
	}
	return strings.Join(s, ",")
}

func (f faultVar) Set(s string) error {
	for _, a := range strings.Split(s, ",") {
		svs, vs, ok := strings.Cut(a, ":")
		if !ok {
			return fmt.Errorf("invalid fault %q, need sv:meters", a)
		}
		sv, err := strconv.Atoi(svs)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(vs, 64)
		if err != nil {
			return err
		}
		f[sv] = v
	}
	return nil
}

// Parse command line arguments
func parseArgs() (a cmdOpt, err error) {
	flag.Usage = func() {
		m.PrintA(`
[Usage]
	%s [Options]

[Options]
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	pOpt := m.NewPvtOpt()
	flag.StringVar(&a.navFn, "n", "", "GPS RINEX navigation file. A synthetic constellation is used if not specified.")
	truth := m.PosLLH{}
	truth.Set("35.681236 139.767125 40.0")
	flag.Var(&truth, "l", "Simulated antenna latitude/longitude/ellipsoidal height. Enclose in quotes like -l \"35.73101206 139.7396917 80.33\"")
	flag.IntVar(&a.epochs, "e", 600, "Number of epochs to process")
	flag.BoolVar(&a.warm, "w", false, "Warm start from the persisted solution")
	flag.BoolVar(&a.raim, "raim", pOpt.Raim, "Exclude one faulty satellite per epoch by leave-one-out residual test")
	flag.BoolVar(&a.pseudoCheck, "pc", pOpt.PseudoCheck, "Reject channels with implausible pseudorange changes")
	flag.StringVar(&a.posFn, "o", "", "Output pos file path. If not specified, output to stdout.")
	flag.BoolVar(&a.noPosHeader, "nh", false, "Do not output header section of pos file.")
	flag.StringVar(&a.statePath, "state", pOpt.StatePath, "Persisted solution file")
	flag.StringVar(&a.metricsAddr, "metrics", "", "Address to serve Prometheus /metrics on, like :9100")
	flag.StringVar(&a.wsAddr, "ws", "", "Address to serve telemetry websocket /ws on, like :8080")
	flag.BoolVar(&a.trace, "trace", false, "Write epoch spans to stderr")
	flag.DurationVar(&a.pace, "pace", 0, "Wall clock time per epoch. 0 runs as fast as possible.")
	faults := faultVar{}
	flag.Var(faults, "fault", "Pseudorange faults to inject, like -fault 5:300,12:-150 (sv:meters)")
	var dbg int
	flag.IntVar(&dbg, "x", 0, "Debug information display. Specify level value. 0(OFF), 1(display), 2(detailed display), 3(more detailed)")
	flag.Parse()
	if flag.NArg() != 0 {
		return a, fmt.Errorf("too many arguments")
	}
	if a.epochs <= 0 {
		return a, fmt.Errorf("number of epochs must be positive")
	}
	a.truth = truth.ToXYZ()
	a.faults = faults
	m.DBG_ = dbg
	return
}

func setPvtOpt(args *cmdOpt) *m.PvtOpt {
	opt := m.NewPvtOpt()
	opt.Raim = args.raim
	opt.PseudoCheck = args.pseudoCheck
	opt.StatePath = args.statePath
	return opt
}

// Read navigation file
func readNav(fn string) (m.Nav, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	nav, err := m.ReadNav(f)
	if err != nil {
		return nil, err
	}
	return nav, nil
}

// Print pos file header
func printPosHeader(pos io.Writer, cmd string, args cmdOpt) {
	fmt.Fprintf(pos, "%% program   : %s\n", filepath.Base(cmd))
	if args.navFn != "" {
		fmt.Fprintf(pos, "%% inp file  : %s\n", args.navFn)
	}
	llh := args.truth.ToLLH()
	fmt.Fprintf(pos, "%% true pos  : %.8f %.8f %.3f\n", m.ToDeg(llh.Lat), m.ToDeg(llh.Lon), llh.Hei)
	fmt.Fprintf(pos, "%%  GPST                 latitude(deg) longitude(deg)  height(m)   Q  ns      clk_bias(s)       gdop       pdop       hdop       vdop\n")
}

// Output POS line
func printPos(pos io.Writer, nav m.NavState, clk m.Clock) {
	rcvt := m.GTime{
		Week: clk.Week,
		Sec:  math.Round(clk.Time*1000) / 1000,
	}
	rcvtStr := rcvt.ToTime().UTC().Format("2006/01/02 15:04:05.000")
	Q := 5
	ns := bits.OnesCount32(nav.Nsvs)
	fmt.Fprintf(pos, "%s %13.9f %14.9f %10.4f %3d %3d %16.9f %10.3f %10.3f %10.3f %10.3f\n", rcvtStr, m.ToDeg(nav.Lat), m.ToDeg(nav.Lon), nav.Alt, Q, ns, clk.Bias, nav.GDOP, nav.PDOP, nav.HDOP, nav.VDOP)
}
