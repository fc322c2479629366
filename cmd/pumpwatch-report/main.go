package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/plantops/pumpwatch/db"
	"github.com/plantops/pumpwatch/internal/report"
)

func main() {
	var dbPath, device, start, end, quick, out string
	flag.StringVar(&dbPath, "db", "logs.db", "Path to the history database file")
	flag.StringVar(&device, "device", "all", "Device id, or 'all'")
	flag.StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	flag.StringVar(&end, "end", "", "End date (YYYY-MM-DD, inclusive)")
	flag.StringVar(&quick, "range", "", "Quick range: 'yesterday' or '7d' (overrides -start/-end)")
	flag.StringVar(&out, "out", "", "CSV output path (default derived from device and range)")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	switch quick {
	case "yesterday":
		start, end = report.Yesterday(time.Now())
	case "7d":
		start, end = report.LastDays(time.Now(), 7)
	case "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown -range %q\n", quick)
		os.Exit(2)
	}

	if *help || start == "" || end == "" {
		fmt.Println("\nUsage of pumpwatch-report:")
		fmt.Println("  -db string\tPath to the history database file (default 'logs.db')")
		fmt.Println("  -device string\tDevice id, or 'all'")
		fmt.Println("  -start string\tStart date (YYYY-MM-DD)")
		fmt.Println("  -end string\tEnd date (YYYY-MM-DD, inclusive)")
		fmt.Println("  -range string\tQuick range: 'yesterday' or '7d'")
		fmt.Println("  -out string\tCSV output path")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	store, err := db.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	res, err := report.NewService(store).Run(device, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Report failed: %v\n", err)
		os.Exit(1)
	}

	if out == "" {
		out = report.CSVFilename(device, start, end)
	}
	f, err := os.Create(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", out, err)
		os.Exit(1)
	}
	if err := report.WriteCSV(f, res.Samples); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Failed to write CSV: %v\n", err)
		os.Exit(1)
	}
	f.Close()

	fmt.Printf("Device %s from %s to %s: %d samples, %d events\n",
		device, start, end, len(res.Samples), len(res.Events))
	fmt.Printf("Wrote %s\n", out)
}
