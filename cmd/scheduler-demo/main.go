// Command scheduler-demo drives a scheduler.Scheduler from the
// command line.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/BakaMMGameMaker/event-scheduler/httpapi"
	"github.com/BakaMMGameMaker/event-scheduler/scheduler"
	"github.com/BakaMMGameMaker/event-scheduler/tracing"
)

var (
	tickDelta    int64
	tickCount    int
	httpPort     int
	enableHTTP   bool
	traceCSVPath string
)

var rootCmd = &cobra.Command{
	Use:   "scheduler-demo",
	Short: "scheduler-demo drives an in-process event scheduler and reports its trace.",
	Long: `scheduler-demo schedules a handful of repeating and one-shot events on an ` +
		`event-scheduler Scheduler, advances its virtual clock by a fixed number of ` +
		`ticks, and reports every firing it observed. An .env file in the working ` +
		`directory, if present, is loaded for SCHEDULER_HTTP_PORT before flags are applied.`,
	RunE: runDemo,
}

func init() {
	rootCmd.Flags().Int64Var(&tickDelta, "tick-delta", 100, "virtual milliseconds advanced per tick")
	rootCmd.Flags().IntVar(&tickCount, "tick-count", 20, "number of ticks to run")
	rootCmd.Flags().BoolVar(&enableHTTP, "http", false, "start the introspection http server")
	rootCmd.Flags().IntVar(&httpPort, "http-port", 0, "port for the introspection http server (0 picks one)")
	rootCmd.Flags().StringVar(&traceCSVPath, "trace-csv", "", "path to write a CSV trace of every firing")
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "scheduler-demo: loading .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func runDemo(cmd *cobra.Command, _ []string) error {
	if !cmd.Flags().Changed("http-port") {
		if v := os.Getenv("SCHEDULER_HTTP_PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("scheduler-demo: parse SCHEDULER_HTTP_PORT: %w", err)
			}
			httpPort = port
		}
	}

	s := scheduler.New()

	hook := tracing.NewHook()
	s.AcceptHook(hook)

	var csvWriter *tracing.CSVWriter
	if traceCSVPath != "" {
		w, err := tracing.NewCSVWriter(traceCSVPath, 32)
		if err != nil {
			return fmt.Errorf("scheduler-demo: open trace csv: %w", err)
		}
		csvWriter = w
	}

	if enableHTTP {
		srv := httpapi.NewServer(s).WithPortNumber(httpPort)
		addr, err := srv.Start()
		if err != nil {
			return fmt.Errorf("scheduler-demo: start http api: %w", err)
		}
		fmt.Fprintf(os.Stderr, "scheduler-demo: introspection api on http://%s\n", addr)
	}

	heartbeats := 0
	s.ScheduleAfter(scheduler.TimeMs(tickDelta), scheduler.EventDescriptor{
		Kind:     scheduler.Repeat,
		Interval: scheduler.TimeMs(tickDelta),
		Priority: scheduler.PrioritySystem,
		Callback: func(scheduler.EventHandle) error {
			heartbeats++
			fmt.Printf("heartbeat %d at t=%d\n", heartbeats, s.Now())
			return nil
		},
	})

	s.ScheduleAfter(scheduler.TimeMs(tickDelta)*3, scheduler.EventDescriptor{
		Kind: scheduler.Once,
		Callback: func(scheduler.EventHandle) error {
			fmt.Printf("one-shot event fired at t=%d\n", s.Now())
			return nil
		},
	})

	for i := 0; i < tickCount; i++ {
		if err := s.Tick(scheduler.TimeMs(tickDelta)); err != nil {
			return fmt.Errorf("scheduler-demo: tick %d: %w", i, err)
		}
	}

	fmt.Printf("finished at t=%d, %d events fired, %d still scheduled\n",
		s.Now(), s.FireCount(), s.Size())

	if csvWriter != nil {
		for _, rec := range hook.Records() {
			if err := csvWriter.Write(rec); err != nil {
				return fmt.Errorf("scheduler-demo: write trace: %w", err)
			}
		}
		if err := csvWriter.Flush(); err != nil {
			return fmt.Errorf("scheduler-demo: flush trace: %w", err)
		}
	}

	return nil
}
