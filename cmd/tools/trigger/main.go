package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8081", "API base URL")
	keyword := flag.String("keyword", "bakery", "Business keyword")
	location := flag.String("location", "Trenton, NJ", "Free-text location")
	maxResults := flag.Int("max", 5, "Maximum leads")
	relay := flag.Bool("relay", false, "Ask the server to use the rendering relay")
	flag.Parse()

	payload, err := json.Marshal(map[string]any{
		"keyword":         *keyword,
		"location":        *location,
		"max_results":     *maxResults,
		"use_scraper_api": *relay,
	})
	if err != nil {
		fmt.Printf("Error encoding request: %v\n", err)
		os.Exit(1)
	}

	url := strings.TrimRight(*baseURL, "/") + "/api/scrape"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 6 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	body, _ := io.ReadAll(resp.Body)

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(body))
	}
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
