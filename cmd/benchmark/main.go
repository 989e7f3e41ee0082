// Benchmark tool for testing Kestrel's batch scoring with synthetic invoices.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -batches 20 -records 500
//
// This tool:
//   1. Generates synthetic invoice batches with planted anomalies
//   2. Sends each batch to Kestrel for scoring
//   3. Compares Kestrel's anomaly flags with the planted labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// InvoiceRecord is one row of a batch request.
type InvoiceRecord struct {
	InvoiceID    string  `json:"invoiceId"`
	Date         string  `json:"date"`
	Supplier     string  `json:"supplier"`
	Item         string  `json:"item"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	LeadTimeDays float64 `json:"leadTimeDays"`
	Amount       float64 `json:"amount"`
}

// BatchRequest is the Kestrel API request format.
type BatchRequest struct {
	Records       []InvoiceRecord `json:"records"`
	Contamination float64         `json:"contamination"`
	Seed          int64           `json:"seed"`
}

// BatchResponse is the Kestrel API response format.
type BatchResponse struct {
	Batch struct {
		ID        string `json:"id"`
		Records   int    `json:"records"`
		Anomalies int    `json:"anomalies"`
	} `json:"batch"`
	Records []struct {
		InvoiceID    string  `json:"invoiceId"`
		AnomalyScore float64 `json:"anomalyScore"`
		IsAnomaly    bool    `json:"isAnomaly"`
	} `json:"records"`
}

// batch pairs the request with the planted anomaly labels.
type batch struct {
	request BatchRequest
	planted map[string]bool
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Planted anomaly flagged
	FalsePositives int64 // Normal row flagged
	TrueNegatives  int64 // Normal row passed
	FalseNegatives int64 // Planted anomaly missed

	TotalBatches int64
	TotalRecords int64
	TotalPlanted int64
	TotalErrors  int64
	ProcessingMs int64
}

var suppliers = []string{"Acme Supply", "Globex Corp", "Initech Ltd", "Umbrella Trading", "Wayne Imports"}
var items = []string{"Widget", "Gasket", "Bearing", "Valve", "Coupling"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	batches := flag.Int("batches", 20, "Number of batches to score")
	records := flag.Int("records", 500, "Records per batch")
	rate := flag.Float64("rate", 0.05, "Planted anomaly rate (0.0-1.0)")
	seed := flag.Int64("seed", 42, "Generator seed")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	if *rate <= 0 || *rate >= 1 {
		fmt.Println("ERROR: -rate must be in (0,1)")
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Invoice Anomalies        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Batches:      %d\n", *batches)
	fmt.Printf("Records:      %d per batch\n", *records)
	fmt.Printf("Anomaly Rate: %.2f\n", *rate)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate batches
	fmt.Printf("\nGenerating %d batches...\n", *batches)
	rng := rand.New(rand.NewSource(*seed))
	generated := make([]batch, *batches)
	for i := range generated {
		generated[i] = generateBatch(rng, *records, *rate, *seed)
	}
	fmt.Printf("✓ Generated %d records\n", (*batches)*(*records))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(generated, *baseURL, *tenantID, *workers, *verbose)
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

// generateBatch produces records around stable per-supplier baselines,
// then inflates a planted subset so the forest has something to find.
func generateBatch(rng *rand.Rand, n int, rate float64, seed int64) batch {
	b := batch{
		request: BatchRequest{
			Records:       make([]InvoiceRecord, 0, n),
			Contamination: rate,
			Seed:          seed,
		},
		planted: make(map[string]bool),
	}

	planted := int(rate * float64(n))
	if planted < 1 {
		planted = 1
	}

	for i := 0; i < n; i++ {
		supplier := suppliers[rng.Intn(len(suppliers))]
		qty := 10 + rng.Float64()*90
		price := 20 + rng.Float64()*30
		lead := 3 + rng.Float64()*10

		rec := InvoiceRecord{
			InvoiceID:    fmt.Sprintf("INV-%06d", i),
			Date:         time.Now().AddDate(0, 0, -rng.Intn(90)).Format("2006-01-02"),
			Supplier:     supplier,
			Item:         items[rng.Intn(len(items))],
			Quantity:     qty,
			UnitPrice:    price,
			LeadTimeDays: lead,
		}

		if i < planted {
			// Inflate price and amount well past the normal range
			rec.UnitPrice = price * (20 + rng.Float64()*30)
			rec.LeadTimeDays = lead * 8
			b.planted[rec.InvoiceID] = true
		}
		rec.Amount = rec.Quantity * rec.UnitPrice

		b.request.Records = append(b.request.Records, rec)
	}

	// Shuffle so planted rows are not clustered at the front
	rng.Shuffle(len(b.request.Records), func(i, j int) {
		b.request.Records[i], b.request.Records[j] = b.request.Records[j], b.request.Records[i]
	})

	return b
}

func runBenchmark(batches []batch, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan batch, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for b := range work {
				start := time.Now()
				result, err := scoreBatch(client, baseURL, tenantID, b.request)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingMs, elapsed)
				atomic.AddInt64(&metrics.TotalBatches, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: batch -> %v\n", err)
					}
					continue
				}

				atomic.AddInt64(&metrics.TotalRecords, int64(len(result.Records)))
				atomic.AddInt64(&metrics.TotalPlanted, int64(len(b.planted)))

				for _, rec := range result.Records {
					predicted := rec.IsAnomaly
					actual := b.planted[rec.InvoiceID]

					if predicted && actual {
						atomic.AddInt64(&metrics.TruePositives, 1)
					} else if predicted && !actual {
						atomic.AddInt64(&metrics.FalsePositives, 1)
					} else if !predicted && !actual {
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					} else {
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					}
				}

				if verbose {
					fmt.Printf("✓ batch %s | records: %4d | flagged: %3d | planted: %3d | %dms\n",
						result.Batch.ID[:8],
						result.Batch.Records,
						result.Batch.Anomalies,
						len(b.planted),
						elapsed,
					)
				}
			}
		}()
	}

	for _, b := range batches {
		work <- b
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreBatch(client *http.Client, baseURL, tenantID string, req BatchRequest) (*BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Batches:    %d\n", m.TotalBatches)
	fmt.Printf("   Total Records:    %d\n", m.TotalRecords)
	fmt.Printf("   Planted:          %d\n", m.TotalPlanted)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                 Anomaly      Normal")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  A  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           N  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were planted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of planted, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalBatches > 0 {
		avgMs := float64(m.ProcessingMs) / float64(m.TotalBatches)
		rps := float64(m.TotalRecords) / duration.Seconds()
		fmt.Printf("   Avg Batch:        %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most planted anomalies")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some planted anomalies")
	} else {
		fmt.Println("   ❌ Poor recall - most planted anomalies are being missed!")
	}

	if precision >= 0.7 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.4 {
		fmt.Println("   ⚠️  Moderate precision - some false flags")
	} else {
		fmt.Println("   ❌ Low precision - mostly false flags")
	}

	fmt.Println()
}
