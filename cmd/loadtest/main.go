// Command loadtest drives concurrent traffic against a running calculator API.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	Scenarios       []string
	ConcurrentUsers int
	RequestsPerUser int
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
	Seed            int64
}

// LoadTestResult holds the result of a single request
type LoadTestResult struct {
	Scenario   string
	RequestID  string
	StatusCode int
	Duration   time.Duration
	Success    bool
	Error      error
}

// ScenarioStats aggregates results for one scenario
type ScenarioStats struct {
	Requests int
	Failures int
	Latency  []time.Duration
}

// LoadTestSummary holds the summary of load test results
type LoadTestSummary struct {
	TotalRequests       int
	SuccessfulRequests  int
	FailedRequests      int
	TotalDuration       time.Duration
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	RequestsPerSecond   float64
	ErrorRate           float64
	ResponseTime95th    time.Duration
	ResponseTime99th    time.Duration
	Scenarios           map[string]*ScenarioStats
}

// scenario builds one request against baseURL
type scenario func(baseURL string, random *rand.Rand) (*http.Request, error)

var scenarios = map[string]scenario{
	"amortization": func(baseURL string, random *rand.Rand) (*http.Request, error) {
		targets := []string{"USD", "EUR", "GBP", "INR"}
		body := fmt.Sprintf(`{"principal":%d,"annual_rate":%.2f,"term_years":%d,"target_currency":"%s"}`,
			10000+random.Intn(490000), 3+random.Float64()*12, 1+random.Intn(30), targets[random.Intn(len(targets))])
		request, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/amortization", bytes.NewBufferString(body))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		return request, nil
	},
	"rates": func(baseURL string, random *rand.Rand) (*http.Request, error) {
		perPage := []int{10, 25, 50}[random.Intn(3)]
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/rates?per_page=%d", baseURL, perPage), nil)
	},
	"convert": func(baseURL string, random *rand.Rand) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/convert?amount=%d&to=EUR", baseURL, 1+random.Intn(10000)), nil)
	},
	"health": func(baseURL string, _ *rand.Rand) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, baseURL+"/health", nil)
	},
}

func main() {
	var config LoadTestConfig
	var scenarioList string

	flag.StringVar(&config.BaseURL, "url", "http://localhost:8081", "Base URL of the API")
	flag.StringVar(&scenarioList, "scenarios", "amortization,rates,convert", "Comma separated scenarios: amortization, rates, convert, health")
	flag.IntVar(&config.ConcurrentUsers, "users", 10, "Number of concurrent users")
	flag.IntVar(&config.RequestsPerUser, "requests", 100, "Number of requests per user")
	flag.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Request timeout")
	flag.DurationVar(&config.TestDuration, "duration", 0, "Test duration (0 = run until all requests complete)")
	flag.DurationVar(&config.RampUpDuration, "rampup", 5*time.Second, "Ramp-up duration")
	flag.DurationVar(&config.ThinkTime, "think", 100*time.Millisecond, "Think time between requests")
	flag.Int64Var(&config.Seed, "seed", time.Now().UnixNano(), "Random seed for generated loans")
	flag.Parse()

	config.Scenarios = strings.Split(scenarioList, ",")
	for _, name := range config.Scenarios {
		if _, ok := scenarios[name]; !ok {
			fmt.Fprintf(os.Stderr, "unknown scenario %q\n", name)
			os.Exit(2)
		}
	}

	fmt.Printf("Load testing %s with %d users x %d requests (%s)\n\n",
		config.BaseURL, config.ConcurrentUsers, config.RequestsPerUser, strings.Join(config.Scenarios, ", "))

	summary := runLoadTest(context.Background(), config)
	printSummary(os.Stdout, summary)
}

func runLoadTest(ctx context.Context, config LoadTestConfig) LoadTestSummary {
	results := make(chan LoadTestResult, config.ConcurrentUsers*config.RequestsPerUser)
	client := &http.Client{Timeout: config.Timeout}

	if config.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TestDuration)
		defer cancel()
	}

	startTime := time.Now()
	var wg sync.WaitGroup
	rampUpDelay := config.RampUpDuration / time.Duration(max(config.ConcurrentUsers, 1))

	for userID := 0; userID < config.ConcurrentUsers; userID++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			random := rand.New(rand.NewSource(config.Seed + int64(uid)))

			if !sleepContext(ctx, time.Duration(uid)*rampUpDelay) {
				return
			}

			for requestIndex := 0; requestIndex < config.RequestsPerUser; requestIndex++ {
				if ctx.Err() != nil {
					return
				}

				name := config.Scenarios[(uid+requestIndex)%len(config.Scenarios)]
				results <- makeRequest(ctx, client, config.BaseURL, name, random)

				if !sleepContext(ctx, config.ThinkTime) {
					return
				}
			}
		}(userID)
	}

	wg.Wait()
	close(results)

	return processResults(results, time.Since(startTime))
}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func makeRequest(ctx context.Context, client *http.Client, baseURL, name string, random *rand.Rand) LoadTestResult {
	result := LoadTestResult{Scenario: name, RequestID: uuid.NewString()}

	request, err := scenarios[name](baseURL, random)
	if err != nil {
		result.Error = err
		return result
	}
	request = request.WithContext(ctx)
	request.Header.Set("X-Request-ID", result.RequestID)

	start := time.Now()
	response, err := client.Do(request)
	if err != nil {
		result.Duration = time.Since(start)
		result.Error = err
		return result
	}
	// drain so the connection is reused
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()

	result.Duration = time.Since(start)
	result.StatusCode = response.StatusCode
	result.Success = response.StatusCode >= 200 && response.StatusCode < 300
	return result
}

func processResults(results <-chan LoadTestResult, totalDuration time.Duration) LoadTestSummary {
	summary := LoadTestSummary{
		TotalDuration: totalDuration,
		Scenarios:     make(map[string]*ScenarioStats),
	}
	var responseTimes []time.Duration

	for result := range results {
		summary.TotalRequests++
		responseTimes = append(responseTimes, result.Duration)

		stats, ok := summary.Scenarios[result.Scenario]
		if !ok {
			stats = &ScenarioStats{}
			summary.Scenarios[result.Scenario] = stats
		}
		stats.Requests++
		stats.Latency = append(stats.Latency, result.Duration)

		if result.Success {
			summary.SuccessfulRequests++
		} else {
			summary.FailedRequests++
			stats.Failures++
		}
	}

	if summary.TotalRequests == 0 {
		return summary
	}

	summary.ErrorRate = float64(summary.FailedRequests) / float64(summary.TotalRequests) * 100
	if totalDuration > 0 {
		summary.RequestsPerSecond = float64(summary.TotalRequests) / totalDuration.Seconds()
	}

	sort.Slice(responseTimes, func(i, j int) bool { return responseTimes[i] < responseTimes[j] })

	var totalResponseTime time.Duration
	for _, responseTime := range responseTimes {
		totalResponseTime += responseTime
	}
	summary.AverageResponseTime = totalResponseTime / time.Duration(len(responseTimes))
	summary.MinResponseTime = responseTimes[0]
	summary.MaxResponseTime = responseTimes[len(responseTimes)-1]
	summary.ResponseTime95th = percentile(responseTimes, 95)
	summary.ResponseTime99th = percentile(responseTimes, 99)

	return summary
}

// percentile expects sorted input
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := len(sorted) * p / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printSummary(out io.Writer, summary LoadTestSummary) {
	fmt.Fprintln(out, "=== Load Test Results ===")
	if summary.TotalRequests == 0 {
		fmt.Fprintln(out, "No requests completed")
		return
	}

	fmt.Fprintf(out, "Total Requests: %d\n", summary.TotalRequests)
	fmt.Fprintf(out, "Successful Requests: %d (%.2f%%)\n", summary.SuccessfulRequests,
		float64(summary.SuccessfulRequests)/float64(summary.TotalRequests)*100)
	fmt.Fprintf(out, "Failed Requests: %d (%.2f%%)\n", summary.FailedRequests, summary.ErrorRate)
	fmt.Fprintf(out, "Total Duration: %v\n", summary.TotalDuration)
	fmt.Fprintf(out, "Requests per Second: %.2f\n", summary.RequestsPerSecond)
	fmt.Fprintf(out, "Average Response Time: %v\n", summary.AverageResponseTime)
	fmt.Fprintf(out, "Min/Max Response Time: %v / %v\n", summary.MinResponseTime, summary.MaxResponseTime)
	fmt.Fprintf(out, "95th/99th Percentile: %v / %v\n", summary.ResponseTime95th, summary.ResponseTime99th)

	names := make([]string, 0, len(summary.Scenarios))
	for name := range summary.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "\n=== Per Scenario ===")
	for _, name := range names {
		stats := summary.Scenarios[name]
		latency := append([]time.Duration(nil), stats.Latency...)
		sort.Slice(latency, func(i, j int) bool { return latency[i] < latency[j] })
		fmt.Fprintf(out, "%-13s requests=%d failures=%d p95=%v\n", name, stats.Requests, stats.Failures, percentile(latency, 95))
	}

	fmt.Fprintln(out, "\n=== Performance Assessment ===")
	if summary.ErrorRate > 5.0 {
		fmt.Fprintf(out, "High error rate: %.2f%% (target: < 5%%)\n", summary.ErrorRate)
	} else {
		fmt.Fprintf(out, "Error rate: %.2f%% (good)\n", summary.ErrorRate)
	}
	if summary.AverageResponseTime > 2*time.Second {
		fmt.Fprintf(out, "High average response time: %v (target: < 2s)\n", summary.AverageResponseTime)
	} else {
		fmt.Fprintf(out, "Average response time: %v (good)\n", summary.AverageResponseTime)
	}
}
