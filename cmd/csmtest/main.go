// Command csmtest exercises the camera/stage mapping core against
// simulated hardware: it calibrates XY, prints the calibration matrix,
// runs a closed-loop spiral scan, and finishes with an autofocus sweep.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/openflexure/camstage/autofocus"
	"github.com/openflexure/camstage/csm"
	"github.com/openflexure/camstage/sim"
	"github.com/openflexure/camstage/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "csmtest.yml"
	k              = koanf.New(".")
)

// Config holds the simulation and calibration parameters.
type Config struct {
	// Seed controls the procedural specimen.
	Seed int64 `koanf:"seed"`

	// PxPerStepX/Y are the true optics coefficients the calibration
	// should recover.
	PxPerStepX float64 `koanf:"pxperstepx"`
	PxPerStepY float64 `koanf:"pxperstepy"`

	// Slack is the simulated mechanical backlash per axis, in steps.
	Slack int `koanf:"slack"`

	StepSize int     `koanf:"stepsize"`
	Repeats  int     `koanf:"repeats"`
	Tol      float64 `koanf:"tolerance"`

	Rings      int     `koanf:"rings"`
	SpiralStep float64 `koanf:"spiralstep"`

	DataFile string `koanf:"datafile"`
}

func defaultConfig() Config {
	return Config{
		Seed:       1234,
		PxPerStepX: 2.0,
		PxPerStepY: 1.5,
		Slack:      2,
		StepSize:   4,
		Repeats:    6,
		Tol:        1.0,
		Rings:      2,
		SpiralStep: 15,
		DataFile:   csm.DefaultDataFile,
	}
}

func setupconfig() {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `csmtest runs the camera/stage mapping pipeline against simulated hardware.
It calibrates the stage against the camera, performs a closed-loop spiral
scan, and autofocuses, printing the results of each step.

Usage:
	csmtest <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `csmtest is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, sane defaults are used: a specimen with seed 1234,
2.0 px/step in X, 1.5 px/step in Y, and 2 steps of mechanical backlash.
Displacements must stay well inside half the frame size or the circular
correlation wraps, so keep stepsize*repeats*px-per-step under a quarter
of the frame width.

The calibration record is written to the configured datafile and can be
inspected or reused with the csm package's Store.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("csmtest version %v\n", Version)
}

func spin(suffix string) (*yacspin.Spinner, error) {
	cfg := yacspin.Config{
		Frequency: 100 * time.Millisecond,
		CharSet:   yacspin.CharSets[59],
		Suffix:    " " + suffix,
	}
	s, err := yacspin.New(cfg)
	if err != nil {
		return nil, err
	}
	return s, s.Start()
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}

	stg := &sim.Stage{Slack: [3]int{c.Slack, c.Slack, 0}}
	cam := sim.NewCamera(sim.NewSpecimen(c.Seed), stg.Carriage)
	cam.PixelsPerStep = [2][2]float64{{c.PxPerStepX, 0}, {0, c.PxPerStepY}}
	cam.DefocusPerStep = 0.05

	mapper := csm.New(cam, stg, &csm.Store{Path: c.DataFile})
	mapper.StepSize = c.StepSize
	mapper.Repeats = c.Repeats
	mapper.SettleDelay = time.Millisecond
	mapper.Options = csm.MoveOptions{Tolerance: c.Tol}

	sp, err := spin("calibrating XY")
	if err != nil {
		log.Fatal(err)
	}
	cal, err := mapper.CalibrateXY()
	sp.Stop()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("stage -> image (px/step):")
	for _, row := range cal.StageToImage {
		fmt.Printf("  [%8.4f %8.4f]\n", row[0], row[1])
	}
	fmt.Println("fit residuals (px): x:", cal.X.Forward.Residual, "y:", cal.Y.Forward.Residual)
	fmt.Println("slowest calibration move:", cal.X.History.Longest())

	sp, err = spin("closed-loop spiral scan")
	if err != nil {
		log.Fatal(err)
	}
	path := csm.SpiralScanPath(c.SpiralStep, c.SpiralStep, c.Rings)
	points := make([]string, 0, len(path))
	err = mapper.ClosedLoopScan(path, func(p csm.ScanPoint) bool {
		points = append(points, fmt.Sprintf("%d:(%.1f, %.1f)", p.Index, p.Achieved.X, p.Achieved.Y))
		return true
	})
	sp.Stop()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("visited:", strings.Join(points, " "))

	sp, err = spin("autofocus")
	if err != nil {
		log.Fatal(err)
	}
	af := autofocus.Routine{Camera: cam, Stage: stg, Settle: time.Millisecond}
	zs, scores, err := af.Run(nil)
	sp.Stop()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("z positions:", util.IntSliceToCSV(zs))
	fmt.Print("scores:")
	for _, s := range scores {
		fmt.Printf(" %.3g", s)
	}
	fmt.Println()
	pos, _ := stg.GetPosition()
	fmt.Println("final position:", pos)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
