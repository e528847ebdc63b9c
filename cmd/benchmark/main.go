// Benchmark tool for testing Kestrel against labeled claim data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/claims.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled claim rows (with fraud labels)
//   2. Drives each claim through file -> attach -> submit -> evaluate
//   3. Compares Kestrel's verdict (flagged / clean) with actual fraud labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClaim represents a row from the benchmark CSV.
type LabeledClaim struct {
	PolicyReference string
	ClaimType       string
	IncidentDate    string
	Amount          float64
	DocumentCount   int
	Fingerprint     string
	IsFraud         bool
}

// ClaimRequest is the Kestrel API request format for filing a claim.
type ClaimRequest struct {
	PolicyReference string  `json:"policyReference"`
	ClaimType       string  `json:"claimType"`
	IncidentDate    string  `json:"incidentDate"`
	AmountClaimed   float64 `json:"amountClaimed"`
	Description     string  `json:"description,omitempty"`
}

// DocumentRequest is the Kestrel API request format for attaching a document.
type DocumentRequest struct {
	DocType     string `json:"docType"`
	StorageRef  string `json:"storageRef"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ClaimResponse is the subset of the claim payload the benchmark needs.
type ClaimResponse struct {
	ID          string `json:"id"`
	ClaimNumber string `json:"claimNumber"`
	Status      string `json:"status"`
}

// EvaluationResponse is the Kestrel fraud evaluation response format.
type EvaluationResponse struct {
	ClaimID string `json:"claimId"`
	Flags   []struct {
		RuleCode string `json:"ruleCode"`
		Severity string `json:"severity"`
	} `json:"flags"`
	RulesEvaluated int `json:"rulesEvaluated"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged
	FalsePositives int64 // Non-fraud flagged
	TrueNegatives  int64 // Non-fraud clean
	FalseNegatives int64 // Fraud passed clean (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled claims CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud claims")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nExpected CSV columns:")
		fmt.Println("  policy_reference,claim_type,incident_date,amount,document_count,fingerprint,is_fraud")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Claim Fraud Screening            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled claims
	fmt.Printf("\nReading claim data from %s...\n", *csvPath)
	claims, err := readClaimsCSV(*csvPath, *limit, *fraudOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d claims\n", len(claims))

	// Count fraud vs non-fraud
	fraudCount := 0
	for _, c := range claims {
		if c.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(claims)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(claims)-fraudCount, 100*float64(len(claims)-fraudCount)/float64(len(claims)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(claims, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
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

func readClaimsCSV(path string, limit int, fraudOnly bool) ([]LabeledClaim, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var claims []LabeledClaim

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := record[colIndex["is_fraud"]] == "1"

		if fraudOnly && !isFraud {
			continue
		}

		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)
		docCount, _ := strconv.Atoi(record[colIndex["document_count"]])
		if docCount < 1 {
			docCount = 1 // a claim needs at least one document to submit
		}

		fingerprint := ""
		if i, ok := colIndex["fingerprint"]; ok {
			fingerprint = record[i]
		}

		claims = append(claims, LabeledClaim{
			PolicyReference: record[colIndex["policy_reference"]],
			ClaimType:       record[colIndex["claim_type"]],
			IncidentDate:    record[colIndex["incident_date"]],
			Amount:          amount,
			DocumentCount:   docCount,
			Fingerprint:     fingerprint,
			IsFraud:         isFraud,
		})

		if limit > 0 && len(claims) >= limit {
			break
		}
	}

	return claims, nil
}

func runBenchmark(claims []LabeledClaim, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledClaim, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := screenClaim(client, baseURL, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.PolicyReference, err)
					}
					continue
				}

				// Track actual labels
				if c.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				predicted := len(result.Flags) > 0
				actual := c.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					verdict := "CLEAN"
					if predicted {
						verdict = "FLAG"
					}
					fmt.Printf("%s %-12s | Type: %-8s | Amount: $%12.2f | Fraud: %-5v | Kestrel: %-5s (%d flags)\n",
						status,
						c.PolicyReference,
						c.ClaimType,
						c.Amount,
						c.IsFraud,
						verdict,
						len(result.Flags),
					)
				}
			}
		}()
	}

	// Send work
	for _, c := range claims {
		work <- c
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

// screenClaim drives one claim through the full lifecycle up to fraud
// evaluation: file, attach documents, submit, evaluate.
func screenClaim(client *http.Client, baseURL string, c LabeledClaim) (*EvaluationResponse, error) {
	var claim ClaimResponse
	err := postJSON(client, baseURL+"/claims", ClaimRequest{
		PolicyReference: c.PolicyReference,
		ClaimType:       c.ClaimType,
		IncidentDate:    c.IncidentDate,
		AmountClaimed:   c.Amount,
		Description:     "benchmark claim",
	}, &claim)
	if err != nil {
		return nil, fmt.Errorf("file claim: %w", err)
	}

	for i := 0; i < c.DocumentCount; i++ {
		fingerprint := ""
		if i == 0 {
			fingerprint = c.Fingerprint
		}
		err := postJSON(client, baseURL+"/claims/"+claim.ID+"/documents", DocumentRequest{
			DocType:     "other",
			StorageRef:  fmt.Sprintf("bench://%s/doc-%d", claim.ID, i),
			Fingerprint: fingerprint,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("attach document: %w", err)
		}
	}

	if err := postJSON(client, baseURL+"/claims/"+claim.ID+"/submit", nil, nil); err != nil {
		return nil, fmt.Errorf("submit claim: %w", err)
	}

	var eval EvaluationResponse
	if err := postJSON(client, baseURL+"/claims/"+claim.ID+"/evaluate", nil, &eval); err != nil {
		return nil, fmt.Errorf("evaluate claim: %w", err)
	}

	return &eval, nil
}

func postJSON(client *http.Client, url string, reqBody, respBody any) error {
	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return err
		}
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if respBody != nil {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        CLEAN")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
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

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged claims, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms (full lifecycle per claim)\n", avgMs)
		fmt.Printf("   Throughput:       %.2f claims/sec\n", cps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
