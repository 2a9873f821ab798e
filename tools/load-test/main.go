package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	// Configuration
	url := "http://localhost:8080/api/v1/punch"
	contentType := "application/json"

	numUsers := 5000
	requestsPerUser := 2
	totalRequests := numUsers * requestsPerUser
	concurrency := 50 // Limit concurrent requests to avoid local port exhaustion

	// Punches scatter around a fixed check area so some land inside the
	// geofence and some outside.
	centerLat, centerLng := 51.5007, -0.1246

	fmt.Printf("Starting load test: %d users (%d requests each) to %s with concurrency %d\n", numUsers, requestsPerUser, url, concurrency)

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // Semaphore to limit concurrency

	var successCount int64
	var failCount int64

	startTime := time.Now()

	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		sem <- struct{}{} // Acquire token

		userID := fmt.Sprintf("load-test-user-%d", i)

		go func(uid string) {
			defer wg.Done()
			defer func() { <-sem }() // Release token

			lat := centerLat + (rand.Float64()-0.5)*0.01
			lng := centerLng + (rand.Float64()-0.5)*0.01
			payload := []byte(fmt.Sprintf(`{"userId": "%s", "latitude": %f, "longitude": %f}`, uid, lat, lng))

			for j := 0; j < requestsPerUser; j++ {
				resp, err := http.Post(url, contentType, bytes.NewBuffer(payload))
				if err != nil {
					atomic.AddInt64(&failCount, 1)
					continue
				}

				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					atomic.AddInt64(&successCount, 1)
				} else {
					atomic.AddInt64(&failCount, 1)
				}
				resp.Body.Close()
			}
		}(userID)
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Successful:     %d\n", successCount)
	fmt.Printf("Failed:         %d\n", failCount)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(totalRequests)/duration.Seconds())
}
