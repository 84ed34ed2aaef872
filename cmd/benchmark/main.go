// Benchmark tool for measuring halalscan rulings against a labeled
// ingredient list.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/labeled.csv -url http://localhost:8080
//
// The CSV needs a header with the columns "text" and "expected"; an optional
// "madhab" column selects the school per row. The tool:
//  1. Reads the labeled ingredients
//  2. Sends each one to POST /resolve
//  3. Compares the returned ruling with the label
//  4. Prints a confusion matrix, accuracy and missed-haram rate
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// rulings in matrix order.
var rulings = []string{"haram", "doubtful", "halal", "unknown"}

// LabeledIngredient is one row of the benchmark set.
type LabeledIngredient struct {
	Text     string
	Expected string
	Madhab   string
}

// ResolveRequest is the halalscan API request format.
type ResolveRequest struct {
	Text   string `json:"text"`
	Madhab string `json:"madhab,omitempty"`
}

// ResolveResponse holds the verdict fields the benchmark reads.
type ResolveResponse struct {
	Ruling     string  `json:"ruling"`
	Confidence float64 `json:"confidence"`
	Matches    []struct {
		Pattern string `json:"pattern"`
	} `json:"matches"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu     sync.Mutex
	matrix map[string]map[string]int64 // expected -> predicted -> count

	TotalProcessed   int64
	TotalErrors      int64
	ProcessingTimeMs int64
}

func newMetrics() *Metrics {
	m := &Metrics{matrix: make(map[string]map[string]int64)}
	for _, r := range rulings {
		m.matrix[r] = make(map[string]int64)
	}
	return m
}

func (m *Metrics) record(expected, predicted string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matrix[expected] == nil {
		m.matrix[expected] = make(map[string]int64)
	}
	m.matrix[expected][predicted]++
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled ingredient CSV")
	baseURL := flag.String("url", "http://localhost:8080", "halalscan base URL")
	madhab := flag.String("madhab", "", "Default madhab for rows without one")
	limit := flag.Int("limit", 0, "Maximum ingredients to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each ingredient result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labeled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HALALSCAN BENCHMARK - Labeled Ingredients            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: halalscan not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure halalscan is running:")
		fmt.Println("  go run ./cmd/halalscan")
		os.Exit(1)
	}
	fmt.Println("✓ halalscan is healthy")

	items, err := readLabeledCSV(*csvPath, *limit, *madhab)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d ingredients\n", len(items))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(items, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int, defaultMadhab string) ([]LabeledIngredient, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	textCol, ok1 := colIndex["text"]
	expectedCol, ok2 := colIndex["expected"]
	if !ok1 || !ok2 {
		return nil, errors.New(`header must contain "text" and "expected"`)
	}
	madhabCol, hasMadhab := colIndex["madhab"]

	var items []LabeledIngredient
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(record) <= max(textCol, expectedCol) {
			continue // Skip malformed rows
		}

		item := LabeledIngredient{
			Text:     record[textCol],
			Expected: strings.ToLower(strings.TrimSpace(record[expectedCol])),
			Madhab:   defaultMadhab,
		}
		if hasMadhab && madhabCol < len(record) && record[madhabCol] != "" {
			item.Madhab = record[madhabCol]
		}
		items = append(items, item)

		if limit > 0 && len(items) >= limit {
			break
		}
	}

	return items, nil
}

func runBenchmark(items []LabeledIngredient, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := newMetrics()

	work := make(chan LabeledIngredient, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for item := range work {
				start := time.Now()
				result, err := resolve(client, baseURL, item)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %q -> %v\n", item.Text, err)
					}
					continue
				}

				metrics.record(item.Expected, result.Ruling)

				if verbose {
					status := "✓"
					if result.Ruling != item.Expected {
						status = "✗"
					}
					fmt.Printf("%s %-40.40q | expected: %-8s | got: %-8s (%.2f) | matches: %d\n",
						status, item.Text, item.Expected, result.Ruling, result.Confidence, len(result.Matches))
				}
			}
		}()
	}

	for _, item := range items {
		work <- item
	}
	close(work)

	wg.Wait()

	return metrics
}

func resolve(client *http.Client, baseURL string, item LabeledIngredient) (*ResolveResponse, error) {
	body, err := json.Marshal(ResolveRequest{Text: item.Text, Madhab: item.Madhab})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX (rows: expected, columns: predicted)\n")
	fmt.Printf("   %-10s", "")
	for _, r := range rulings {
		fmt.Printf(" %9s", r)
	}
	fmt.Println()

	var correct, total int64
	for _, expected := range rulings {
		fmt.Printf("   %-10s", expected)
		for _, predicted := range rulings {
			n := m.matrix[expected][predicted]
			fmt.Printf(" %9d", n)
			total += n
			if expected == predicted {
				correct += n
			}
		}
		fmt.Println()
	}

	accuracy := float64(0)
	if total > 0 {
		accuracy = float64(correct) / float64(total)
	}

	var haramTotal int64
	for _, n := range m.matrix["haram"] {
		haramTotal += n
	}
	missed := haramTotal - m.matrix["haram"]["haram"]

	fmt.Printf("\nRULING METRICS\n")
	fmt.Printf("   Accuracy:      %.4f  (overall correct rulings)\n", accuracy)
	if haramTotal > 0 {
		fmt.Printf("   Haram Missed:  %d / %d (%.2f%%)\n", missed, haramTotal, float64(missed)/float64(haramTotal)*100)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
